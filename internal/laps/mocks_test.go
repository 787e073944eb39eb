package laps

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	ldapclient "github.com/isometry/adlaps/internal/ldap"
)

// MockClient is a testify mock of ldapclient.Client.
type MockClient struct {
	mock.Mock
}

func (m *MockClient) Connect(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockClient) Close() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockClient) Search(ctx context.Context, req *ldapclient.SearchRequest) (*ldapclient.SearchResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ldapclient.SearchResult), args.Error(1)
}

func (m *MockClient) SearchWithPaging(ctx context.Context, req *ldapclient.SearchRequest) (*ldapclient.SearchResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ldapclient.SearchResult), args.Error(1)
}

func (m *MockClient) Modify(ctx context.Context, req *ldapclient.ModifyRequest) error {
	args := m.Called(ctx, req)
	return args.Error(0)
}

func (m *MockClient) GetBaseDN(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockClient) WhoAmI(ctx context.Context) (*ldapclient.WhoAmIResult, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ldapclient.WhoAmIResult), args.Error(1)
}

func (m *MockClient) Server() *ldapclient.ServerInfo {
	args := m.Called()
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).(*ldapclient.ServerInfo)
}

// logEntry is one line captured by recordingLogger.
type logEntry struct {
	level  string
	msg    string
	fields map[string]any
}

// recordingLogger captures log lines for assertions.
type recordingLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

func (l *recordingLogger) record(level, msg string, fields map[string]any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, logEntry{level: level, msg: msg, fields: fields})
}

func (l *recordingLogger) Trace(msg string, fields map[string]any) { l.record("trace", msg, fields) }
func (l *recordingLogger) Debug(msg string, fields map[string]any) { l.record("debug", msg, fields) }
func (l *recordingLogger) Info(msg string, fields map[string]any)  { l.record("info", msg, fields) }
func (l *recordingLogger) Warn(msg string, fields map[string]any)  { l.record("warn", msg, fields) }
func (l *recordingLogger) Error(msg string, fields map[string]any) { l.record("error", msg, fields) }

// find returns the first entry at level whose message is msg.
func (l *recordingLogger) find(level, msg string) (logEntry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.entries {
		if e.level == level && e.msg == msg {
			return e, true
		}
	}
	return logEntry{}, false
}

// count returns the number of entries at level.
func (l *recordingLogger) count(level string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.entries {
		if e.level == level {
			n++
		}
	}
	return n
}

// write is one WriteAttribute call seen by fakeRecord.
type write struct {
	name  string
	value string
}

// fakeRecord is an in-memory Record.
type fakeRecord struct {
	dn       string
	name     string
	attrs    map[string]string
	readErr  map[string]error
	writeErr map[string]error
	writes   []write
}

func newFakeRecord(attrs map[string]string) *fakeRecord {
	if attrs == nil {
		attrs = map[string]string{}
	}
	return &fakeRecord{
		dn:       "CN=HOST,CN=Computers,DC=example,DC=com",
		name:     "HOST$",
		attrs:    attrs,
		readErr:  map[string]error{},
		writeErr: map[string]error{},
	}
}

func (r *fakeRecord) Name() string { return r.name }
func (r *fakeRecord) DN() string   { return r.dn }

func (r *fakeRecord) ReadAttribute(_ context.Context, name string) (string, error) {
	if err := r.readErr[name]; err != nil {
		return "", err
	}
	value, ok := r.attrs[name]
	if !ok {
		return "", ErrAttributeNotFound
	}
	return value, nil
}

func (r *fakeRecord) WriteAttribute(_ context.Context, name, value string) error {
	r.writes = append(r.writes, write{name: name, value: value})
	if err := r.writeErr[name]; err != nil {
		return err
	}
	r.attrs[name] = value
	return nil
}

// staticSettings is a Settings backed by a map.
type staticSettings map[string]string

func (s staticSettings) GetString(key string) string { return s[key] }
