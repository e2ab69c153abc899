package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stakeScope/internal/model"
)

func TestJsonlSinkAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal", "events.jsonl")
	sink := NewJsonlSink(path)
	t.Cleanup(func() { sink.Close() })
	ctx := context.Background()

	require.NoError(t, sink.PutEvents(ctx, []model.Event{{ID: "a", Kind: model.EventDeposit, Amount: 10}}))
	require.NoError(t, sink.PutEvents(ctx, []model.Event{{ID: "b", Kind: model.EventClaim, RewardPaid: 3}}))
	require.NoError(t, sink.PutEvents(ctx, nil))

	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	var got []model.Event
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var e model.Event
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &e))
		got = append(got, e)
	}
	require.NoError(t, scanner.Err())
	require.Len(t, got, 2)
	assert.Equal(t, model.EventDeposit, got[0].Kind)
	assert.Equal(t, uint64(3), got[1].RewardPaid)
}

type failingSink struct{ err error }

func (f failingSink) PutEvents(context.Context, []model.Event) error { return f.err }

func TestMultiSinkJoinsErrors(t *testing.T) {
	boom := errors.New("boom")
	path := filepath.Join(t.TempDir(), "events.jsonl")
	sink := MultiSink{failingSink{err: boom}, nil, NewJsonlSink(path)}

	err := sink.PutEvents(context.Background(), []model.Event{{ID: "x"}})
	assert.ErrorIs(t, err, boom)

	_, statErr := os.Stat(path)
	assert.NoError(t, statErr)
}

func TestLineWriterReopensAfterClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.jsonl")
	w := NewLineWriter(path, true)

	require.NoError(t, w.Append(map[string]int{"n": 1}, map[string]int{"n": 2}))
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
	require.NoError(t, w.Append(map[string]int{"n": 3}))
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "{\"n\":1}\n{\"n\":2}\n{\"n\":3}\n", string(data))
}

func TestLineWriterRejectsUnencodable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.jsonl")
	w := NewLineWriter(path, false)
	defer w.Close()

	err := w.Append(map[string]int{"ok": 1}, make(chan int))
	require.Error(t, err)

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "a failed batch writes nothing")
}
