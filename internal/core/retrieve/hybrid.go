package retrieve

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/retrieval-engine/internal/core/domain"
	"github.com/kirillkom/retrieval-engine/internal/core/fusion"
)

const defaultBranchTimeout = 5 * time.Second

// Hybrid fans a query out over several sub-retrievers concurrently and
// fuses their lists. A branch that fails or exceeds its timeout contributes
// no list; the request fails only when every branch does.
type Hybrid struct {
	branches       []Retriever
	method         fusion.Method
	fusionOpts     fusion.Options
	branchTimeout  time.Duration
	candidateLimit int
}

func NewHybrid(branches []Retriever, method fusion.Method, opts fusion.Options, branchTimeout time.Duration, candidateLimit int) *Hybrid {
	if branchTimeout <= 0 {
		branchTimeout = defaultBranchTimeout
	}
	if candidateLimit <= 0 {
		candidateLimit = 30
	}
	return &Hybrid{
		branches:       branches,
		method:         method,
		fusionOpts:     opts,
		branchTimeout:  branchTimeout,
		candidateLimit: candidateLimit,
	}
}

func (r *Hybrid) Retrieve(ctx context.Context, query string, limit int) ([]domain.ScoredChunk, error) {
	limit = normalizeLimit(limit)
	if len(r.branches) == 0 {
		return nil, domain.WrapError(domain.ErrRetrievalFailed, "hybrid retrieve", fmt.Errorf("no branches configured"))
	}

	lists, errs := fanOut(ctx, r.branches, query, r.candidateLimit, r.branchTimeout)

	// Failed branches keep their slot as a nil list so surviving lists stay
	// at their branch position and inherit the right fusion weight.
	survivors := 0
	var firstErr error
	for i := range lists {
		if errs[i] != nil {
			slog.Warn("hybrid_branch_failed", "branch", i, "error", errs[i])
			if firstErr == nil {
				firstErr = errs[i]
			}
			lists[i] = nil
			continue
		}
		survivors++
	}
	if survivors == 0 {
		return nil, domain.WrapError(domain.ErrRetrievalFailed, "hybrid retrieve", firstErr)
	}

	fused := fusion.FuseWith(lists, r.method, r.fusionOpts)
	return domain.TruncateRanked(fused, limit), nil
}

// fanOut runs one branch per retriever with a per-branch deadline. Slots for
// failed branches carry the error; result order matches branch order, so
// fusion never depends on completion order.
func fanOut(ctx context.Context, branches []Retriever, query string, limit int, timeout time.Duration) ([][]domain.ScoredChunk, []error) {
	lists := make([][]domain.ScoredChunk, len(branches))
	errs := make([]error, len(branches))

	var g errgroup.Group
	for i, branch := range branches {
		g.Go(func() error {
			branchCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			lists[i], errs[i] = branch.Retrieve(branchCtx, query, limit)
			return nil
		})
	}
	_ = g.Wait()
	return lists, errs
}
