package ports

import (
	"context"

	"github.com/ravindersinghsandhu/Umbraco-CMS/internal/login/app/flow"
)

// SessionState is the part of a login controller that survives between requests.
type SessionState struct {
	Path       string     `json:"path,omitempty"`
	Query      flow.Query `json:"query"`
	Override   flow.Flow  `json:"override,omitempty"`
	ReturnPath string     `json:"returnPath,omitempty"`
}

type SessionStore interface {
	Load(ctx context.Context, id string) (SessionState, bool, error)
	Save(ctx context.Context, id string, state SessionState) error
	Delete(ctx context.Context, id string) error
}
