package persist

import (
	"context"
	"testing"

	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canopylog/canopy/pkg/types"
)

func TestPermanentMarking(t *testing.T) {
	base := pkgerrors.New("schema mismatch")

	assert.False(t, IsPermanent(base))
	assert.True(t, IsPermanent(Permanent(base)))
	assert.Nil(t, Permanent(nil))
}

func TestPermanentSurvivesWrapping(t *testing.T) {
	err := Permanent(pkgerrors.New("rejected"))
	wrapped := pkgerrors.Wrap(err, "flushing batch")

	assert.True(t, IsPermanent(wrapped))
	assert.Contains(t, wrapped.Error(), "rejected")
}

func TestPermanentPreservesMessage(t *testing.T) {
	err := Permanent(pkgerrors.New("bad payload"))
	assert.Equal(t, "bad payload", err.Error())
}

func TestFuncAdapter(t *testing.T) {
	called := 0
	p := Func(func(ctx context.Context, batch []*types.LogEntry) error {
		called += len(batch)
		return nil
	})

	require.Equal(t, "func", p.Name())
	err := p.Persist(context.Background(), []*types.LogEntry{{}, {}})
	require.NoError(t, err)
	assert.Equal(t, 2, called)
}
