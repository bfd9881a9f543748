// Package testsupport provides in-memory stand-ins for the stores and
// external services used by the pipeline, for package tests.
package testsupport

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/thaihoc1310/streamvod/internal/apperr"
	"github.com/thaihoc1310/streamvod/internal/models"
	"github.com/thaihoc1310/streamvod/pkg/storage"
	"github.com/thaihoc1310/streamvod/pkg/transcoder"
)

// ErrInjected is returned by fakes configured to fail.
var ErrInjected = errors.New("injected failure")

// Videos is an in-memory video entity store.
type Videos struct {
	mu        sync.Mutex
	rows      map[uuid.UUID]models.Video
	CreateErr error
	DeleteErr error
	UpdateErr error
	Writes    int // successful status updates
}

func NewVideos() *Videos {
	return &Videos{rows: make(map[uuid.UUID]models.Video)}
}

func (f *Videos) Create(_ context.Context, v *models.Video) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CreateErr != nil {
		return f.CreateErr
	}
	if _, ok := f.rows[v.ID]; ok {
		return &apperr.Error{Kind: apperr.KindConflict, Op: "videos.create", Msg: "video already exists"}
	}
	now := time.Now().UTC()
	v.CreatedAt, v.UpdatedAt = now, now
	f.rows[v.ID] = *v
	return nil
}

func (f *Videos) Delete(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.DeleteErr != nil {
		return f.DeleteErr
	}
	delete(f.rows, id)
	return nil
}

func (f *Videos) GetByID(_ context.Context, id uuid.UUID) (*models.Video, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.rows[id]
	if !ok {
		return nil, apperr.NotFound("videos.get", "video not found")
	}
	return &v, nil
}

func (f *Videos) MarkReady(_ context.Context, id uuid.UUID, u models.ReadyUpdate) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.UpdateErr != nil {
		return false, f.UpdateErr
	}
	v, ok := f.rows[id]
	if !ok || !models.CanTransition(v.Status, models.VideoStatusReady) {
		return false, nil
	}
	u.Apply(&v)
	v.UpdatedAt = time.Now().UTC()
	f.rows[id] = v
	f.Writes++
	return true, nil
}

func (f *Videos) MarkFailed(_ context.Context, id uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.UpdateErr != nil {
		return false, f.UpdateErr
	}
	v, ok := f.rows[id]
	if !ok || !models.CanTransition(v.Status, models.VideoStatusFailed) {
		return false, nil
	}
	v.Status = models.VideoStatusFailed
	v.UpdatedAt = time.Now().UTC()
	f.rows[id] = v
	f.Writes++
	return true, nil
}

// Put seeds a row without going through Create.
func (f *Videos) Put(v models.Video) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[v.ID] = v
}

// Sessions is an in-memory upload session store.
type Sessions struct {
	mu        sync.Mutex
	rows      map[uuid.UUID]models.UploadSession
	CreateErr error
	UpdateErr error
}

func NewSessions() *Sessions {
	return &Sessions{rows: make(map[uuid.UUID]models.UploadSession)}
}

func (f *Sessions) Create(_ context.Context, s *models.UploadSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CreateErr != nil {
		return f.CreateErr
	}
	if _, ok := f.rows[s.VideoID]; ok {
		return &apperr.Error{Kind: apperr.KindConflict, Op: "uploads.session_create", Msg: "upload session already exists"}
	}
	f.rows[s.VideoID] = clone(*s)
	return nil
}

func (f *Sessions) Get(_ context.Context, videoID uuid.UUID) (*models.UploadSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.rows[videoID]
	if !ok {
		return nil, apperr.NotFound("uploads.session_get", "upload session not found")
	}
	c := clone(s)
	return &c, nil
}

func (f *Sessions) Update(_ context.Context, videoID uuid.UUID, fn func(*models.UploadSession) error) (*models.UploadSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.UpdateErr != nil {
		return nil, f.UpdateErr
	}
	s, ok := f.rows[videoID]
	if !ok {
		return nil, apperr.NotFound("uploads.session_update", "upload session not found")
	}
	c := clone(s)
	if err := fn(&c); err != nil {
		return nil, err
	}
	f.rows[videoID] = clone(c)
	return &c, nil
}

func clone(s models.UploadSession) models.UploadSession {
	if s.Parts != nil {
		parts := make(map[int]string, len(s.Parts))
		for k, v := range s.Parts {
			parts[k] = v
		}
		s.Parts = parts
	}
	return s
}

// Multipart is an in-memory multipart upload endpoint.
type Multipart struct {
	mu          sync.Mutex
	open        map[string]string // upload ID -> key
	CreateErr   error
	PresignErr  error
	CompleteErr error
	AbortErr    error
	Completed   map[string][]storage.Part // key -> parts
	Aborted     []string                  // upload IDs
	Calls       []string
	seq         int
}

func NewMultipart() *Multipart {
	return &Multipart{open: make(map[string]string), Completed: make(map[string][]storage.Part)}
}

func (f *Multipart) CreateMultipartUpload(_ context.Context, key, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, "create")
	if f.CreateErr != nil {
		return "", f.CreateErr
	}
	f.seq++
	id := "upload-" + strconv.Itoa(f.seq)
	f.open[id] = key
	return id, nil
}

func (f *Multipart) PresignUploadPart(_ context.Context, key, uploadID string, partNumber int32, expires time.Duration) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, "presign")
	if f.PresignErr != nil {
		return "", f.PresignErr
	}
	return fmt.Sprintf("https://src.example.com/%s?uploadId=%s&partNumber=%d&X-Amz-Expires=%d",
		key, uploadID, partNumber, int(expires.Seconds())), nil
}

func (f *Multipart) CompleteMultipartUpload(_ context.Context, key, uploadID string, parts []storage.Part) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, "complete")
	if f.CompleteErr != nil {
		return "", f.CompleteErr
	}
	if f.open[uploadID] != key {
		return "", fmt.Errorf("NoSuchUpload: %s", uploadID)
	}
	delete(f.open, uploadID)
	f.Completed[key] = append([]storage.Part(nil), parts...)
	return `"etag-` + uploadID + `"`, nil
}

func (f *Multipart) AbortMultipartUpload(_ context.Context, _, uploadID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, "abort")
	if f.AbortErr != nil {
		return f.AbortErr
	}
	delete(f.open, uploadID)
	f.Aborted = append(f.Aborted, uploadID)
	return nil
}

// CallCount returns how many times op was called.
func (f *Multipart) CallCount(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.Calls {
		if c == op {
			n++
		}
	}
	return n
}

// Transcoder is an in-memory job service.
type Transcoder struct {
	mu        sync.Mutex
	jobs      map[string]*transcoder.Job
	Submitted []transcoder.JobSpec
	SubmitErr error
	GetErr    error
	GetCalls  int
	seq       int
}

func NewTranscoder() *Transcoder {
	return &Transcoder{jobs: make(map[string]*transcoder.Job)}
}

func (f *Transcoder) SubmitJob(_ context.Context, spec transcoder.JobSpec) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SubmitErr != nil {
		return "", f.SubmitErr
	}
	f.Submitted = append(f.Submitted, spec)
	f.seq++
	id := "job-" + strconv.Itoa(f.seq)
	meta := make(map[string]string, len(spec.Metadata))
	for k, v := range spec.Metadata {
		meta[k] = v
	}
	f.jobs[id] = &transcoder.Job{ID: id, Status: "SUBMITTED", Metadata: meta}
	return id, nil
}

func (f *Transcoder) GetJob(_ context.Context, jobID string) (*transcoder.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.GetCalls++
	if f.GetErr != nil {
		return nil, f.GetErr
	}
	j, ok := f.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("job %s not found", jobID)
	}
	c := *j
	return &c, nil
}

// Finish sets the final status and output duration of a job.
func (f *Transcoder) Finish(jobID, status string, durationMs int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if j, ok := f.jobs[jobID]; ok {
		j.Status = status
		j.DurationMs = durationMs
	}
}

// PutJob seeds a job directly.
func (f *Transcoder) PutJob(j transcoder.Job) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs[j.ID] = &j
}

type object struct {
	data        []byte
	contentType string
}

// Bucket is an in-memory object store bucket with paged listings.
type Bucket struct {
	mu       sync.Mutex
	objects  map[string]object
	PageSize int
	ListErr  error
	ProbeErr error
	GetErr   map[string]error
	PutErr   map[string]error
	// Delay is applied to every Get, honoring ctx.
	Delay    time.Duration
	Events   []string
	inflight int
	MaxInUse int
}

func NewBucket() *Bucket {
	return &Bucket{objects: make(map[string]object), PageSize: 1000, GetErr: map[string]error{}, PutErr: map[string]error{}}
}

// Seed stores an object directly.
func (b *Bucket) Seed(key string, data []byte, contentType string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[key] = object{data: data, contentType: contentType}
}

// Object returns a stored object.
func (b *Bucket) Object(key string) ([]byte, string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	o, ok := b.objects[key]
	return o.data, o.contentType, ok
}

// Len returns the number of stored objects.
func (b *Bucket) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.objects)
}

func (b *Bucket) ListPage(_ context.Context, prefix, token string) ([]storage.ObjectInfo, string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Events = append(b.Events, "list:"+prefix+"@"+token)
	if b.ListErr != nil {
		return nil, "", b.ListErr
	}
	var keys []string
	for k := range b.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	start := 0
	if token != "" {
		start = sort.SearchStrings(keys, token)
	}
	end := start + b.PageSize
	next := ""
	if end < len(keys) {
		next = keys[end]
	} else {
		end = len(keys)
	}
	page := make([]storage.ObjectInfo, 0, end-start)
	for _, k := range keys[start:end] {
		page = append(page, storage.ObjectInfo{Key: k, Size: int64(len(b.objects[k].data))})
	}
	return page, next, nil
}

func (b *Bucket) Get(ctx context.Context, key string) ([]byte, string, error) {
	b.mu.Lock()
	b.Events = append(b.Events, "get:"+key)
	b.inflight++
	if b.inflight > b.MaxInUse {
		b.MaxInUse = b.inflight
	}
	delay := b.Delay
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		b.inflight--
		b.mu.Unlock()
	}()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, "", ctx.Err()
		}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.GetErr[key]; err != nil {
		return nil, "", err
	}
	o, ok := b.objects[key]
	if !ok {
		return nil, "", fmt.Errorf("NoSuchKey: %s", key)
	}
	return append([]byte(nil), o.data...), o.contentType, nil
}

func (b *Bucket) Put(_ context.Context, key string, body []byte, contentType string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Events = append(b.Events, "put:"+key)
	if err := b.PutErr[key]; err != nil {
		return err
	}
	b.objects[key] = object{data: append([]byte(nil), body...), contentType: contentType}
	return nil
}

// SetPutErr makes Put of key fail with err; a nil err clears it.
func (b *Bucket) SetPutErr(key string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil {
		delete(b.PutErr, key)
		return
	}
	b.PutErr[key] = err
}

func (b *Bucket) Probe(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Events = append(b.Events, "probe")
	return b.ProbeErr
}

// EventLog returns a copy of the recorded calls.
func (b *Bucket) EventLog() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.Events...)
}
