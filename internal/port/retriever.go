package port

import (
	"context"

	"studyrag/internal/domain"
)

// Retriever selects the chunks most relevant to a query within a document scope.
type Retriever interface {
	Retrieve(ctx context.Context, query string, scope domain.Scope, k int) (domain.RetrievalResult, error)
}
