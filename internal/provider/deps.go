package provider

import (
	"net/http"
	"time"

	"github.com/electrolux-oss/infrawallet-sub000/internal/classifier"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Deps are the shared collaborators injected into every adapter.
type Deps struct {
	// Classifier resolves service names to categories. Never nil.
	Classifier *classifier.Classifier

	// DB is the relational store used by the custom-cost adapter. May be
	// nil when no DSN is configured; the adapter then returns empty.
	DB *pgxpool.Pool

	// HTTPClient is shared by all HTTP-backed adapters; tests swap it.
	HTTPClient *http.Client
}

// NewDeps fills in defaults for optional collaborators.
func NewDeps(cls *classifier.Classifier, db *pgxpool.Pool) Deps {
	return Deps{
		Classifier: cls,
		DB:         db,
		HTTPClient: &http.Client{Timeout: 60 * time.Second},
	}
}
