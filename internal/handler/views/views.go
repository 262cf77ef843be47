// Package views holds the templ components for the application's pages.
package views

import (
	"context"

	"github.com/a-h/templ"

	"github.com/pavelanni/emailtutor/internal/model"
	"github.com/pavelanni/emailtutor/internal/session"
)

// IndexData is everything the single page shows.
type IndexData struct {
	session.View
	Errors       []string // message IDs
	MinQuestions int
	MaxQuestions int
	NumQuestions int
	Retrieval    bool
}

// pathURL prefixes p with the deployment base path.
func pathURL(ctx context.Context, p string) templ.SafeURL {
	return templ.SafeURL(model.BasePathFromContext(ctx) + p)
}
