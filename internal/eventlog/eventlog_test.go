package eventlog

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionRecordsJSONLines(t *testing.T) {
	var buf bytes.Buffer
	logger := NewJSONLinesRecorder(&buf)
	logger.now = func() time.Time { return time.UnixMicro(1234) }
	session := logger.NewSession()
	require.NotEmpty(t, session.SessionID())

	require.NoError(t, session.Record(Entry{Event: Started, JobID: 1, PGID: 77, Status: "Running", Command: "sleep 5"}))
	require.NoError(t, session.Record(Entry{Event: Done, JobID: 1, PGID: 77, Command: "sleep 5"}))

	var got []*Entry
	require.NoError(t, Read(&buf, func(e *Entry) { got = append(got, e) }))
	require.Len(t, got, 2)

	assert.Equal(t, Started, got[0].Event)
	assert.Equal(t, int64(1234), got[0].TimestampMicros)
	assert.Equal(t, session.SessionID(), got[0].SessionID)
	assert.Equal(t, 77, got[0].PGID)
	assert.Equal(t, "Running", got[0].Status)
	assert.Equal(t, Done, got[1].Event)
}

func TestSessionsHaveDistinctIDs(t *testing.T) {
	logger := NewJSONLinesRecorder(&bytes.Buffer{})
	assert.NotEqual(t, logger.NewSession().SessionID(), logger.NewSession().SessionID())
}

func TestNilSessionIsNoop(t *testing.T) {
	var session *SessionLogger
	assert.NoError(t, session.Record(Entry{Event: Started}))
	assert.Equal(t, "", session.SessionID())
}

func TestReadRejectsGarbage(t *testing.T) {
	err := Read(bytes.NewBufferString("{not json}\n"), func(*Entry) {})
	assert.Error(t, err)
}
