package tenancy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/orvio-ai/be-order-verification/internal/errors"
)

func TestAuthorize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		actorTenant    string
		resourceTenant string
		wantErr        bool
	}{
		{"same tenant", "tenant-a", "tenant-a", false},
		{"different tenant", "tenant-a", "tenant-b", true},
		{"empty actor tenant", "", "tenant-b", true},
		{"empty resource tenant", "tenant-a", "", true},
		{"both empty", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Authorize(tt.actorTenant, tt.resourceTenant)
			if tt.wantErr {
				assert.True(t, errors.Is(err, errors.ErrCodeUnauthorized))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
