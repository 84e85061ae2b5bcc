package logctx

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	entry := logrus.NewEntry(logrus.New()).WithField("foo", "bar")
	ctx := New(context.Background(), entry)
	require.Equal(t, entry, ctx.Log)
	require.Equal(t, context.Background(), ctx.Context)
}

func TestFromContext(t *testing.T) {
	ctx := WithLogField(Background(), "fish", "chips")
	assert.Same(t, ctx, FromContext(ctx))

	upgraded := FromContext(context.Background())
	require.NotNil(t, upgraded.Log)
}

func TestWithLogField(t *testing.T) {
	ctx := WithLogField(Background(), "fish", "chips")
	require.Equal(t, context.Background(), ctx.Context)
	require.Equal(t, logrus.Fields{"fish": "chips"}, ctx.Log.Data)
}

func TestWithLogFields(t *testing.T) {
	ctx := WithLogFields(Background(), logrus.Fields{"fish": "chips", "salt": "pepper"})
	require.Equal(t, logrus.Fields{"fish": "chips", "salt": "pepper"}, ctx.Log.Data)
}

func TestWithCancel(t *testing.T) {
	ctx, cancel := WithCancel(WithLogField(Background(), "fish", "chips"))
	cancel()
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("context was not cancelled")
	}
	require.Equal(t, logrus.Fields{"fish": "chips"}, ctx.Log.Data)
}

func TestWithTimeout(t *testing.T) {
	ctx, cancel := WithTimeout(Background(), 50*time.Millisecond)
	defer cancel()
	_, ok := ctx.Deadline()
	require.True(t, ok)
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("deadline was not honoured")
	}
}

func TestErrGroup(t *testing.T) {
	g, ctx := ErrGroup(WithLogField(Background(), "fish", "chips"))
	g.Go(func() error {
		return errors.New("boom")
	})
	g.Go(func() error {
		<-ctx.Done()
		return nil
	})
	require.EqualError(t, g.Wait(), "boom")
	require.Equal(t, logrus.Fields{"fish": "chips"}, ctx.Log.Data)
}
