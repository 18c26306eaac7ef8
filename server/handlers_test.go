package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"audiovault/config"
	"audiovault/core/audio"
	"audiovault/core/identity"
	"audiovault/core/ingest"
	"audiovault/core/library"
	"audiovault/db"
	"audiovault/repository"
	"audiovault/storage"
)

type copyTranscoder struct{}

func (copyTranscoder) TranscodeToMP3(_ context.Context, in, out string) error {
	data, err := os.ReadFile(in)
	if err != nil {
		return err
	}
	return os.WriteFile(out, data, 0644)
}

type downDB struct{}

func (downDB) Ping() error { return errors.New("connection refused") }

type testServer struct {
	*httptest.Server
	cfg      *config.Config
	storeDir string
}

func newTestServer(t *testing.T, transcoder audio.Transcoder, mutate func(*config.Config)) *testServer {
	t.Helper()
	root := t.TempDir()
	cfg := &config.Config{
		PublicBaseURL:     "http://audio.test",
		AudioDir:          filepath.Join(root, "audio"),
		TempDir:           filepath.Join(root, "tmp"),
		MaxUploadBytes:    10 << 20,
		CORSAllowedOrigin: "http://localhost:3000",
	}
	if mutate != nil {
		mutate(cfg)
	}

	database, err := db.Open("sqlite://:memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	require.NoError(t, db.Migrate(database))

	store, err := storage.NewLocalStore(cfg.AudioDir)
	require.NoError(t, err)

	recordRepo := repository.NewGormAudioRecordRepository(database.Gorm)
	identitySvc := identity.NewService(repository.NewGormUserRepository(database.Gorm))
	pipeline := ingest.NewPipeline(identitySvc, transcoder, store, recordRepo,
		ingest.Options{TempDir: cfg.TempDir, PublicBaseURL: cfg.PublicBaseURL})
	h := NewAPIHandler(identitySvc, pipeline, library.NewService(recordRepo, store, nil), database, cfg)

	srv := httptest.NewServer(NewRouter(h, cfg))
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, cfg: cfg, storeDir: cfg.AudioDir}
}

func (s *testServer) postForm(t *testing.T, path string, form url.Values) *http.Response {
	t.Helper()
	resp, err := http.PostForm(s.URL+path, form)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (s *testServer) register(t *testing.T, username string) userResponse {
	t.Helper()
	resp := s.postForm(t, "/users/", url.Values{"username": {username}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var u userResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&u))
	return u
}

func (s *testServer) upload(t *testing.T, userID, token, filename string, content []byte) *http.Response {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("user_id", userID))
	require.NoError(t, mw.WriteField("token", token))
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp, err := http.Post(s.URL+"/upload-audio/", mw.FormDataContentType(), &body)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

// recordPath turns the public URL from an upload into a path on s.
func recordPath(t *testing.T, publicURL string) string {
	t.Helper()
	u, err := url.Parse(publicURL)
	require.NoError(t, err)
	return u.Path + "/?" + u.RawQuery
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(data)
}

func TestCreateUser(t *testing.T) {
	s := newTestServer(t, copyTranscoder{}, nil)

	u := s.register(t, "alice")
	assert.Equal(t, "alice", u.Username)
	assert.NotEmpty(t, u.UserID)
	assert.NotEmpty(t, u.Token)

	resp := s.postForm(t, "/users/", url.Values{"username": {"alice"}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), "Error creating user")

	resp = s.postForm(t, "/users", url.Values{"username": {""}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestLogin(t *testing.T) {
	s := newTestServer(t, copyTranscoder{}, nil)
	u := s.register(t, "alice")

	resp := s.postForm(t, "/login/", url.Values{"username": {"alice"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var got userResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, u, got)

	resp = s.postForm(t, "/login", url.Values{"username": {"bob"}})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = s.postForm(t, "/login/", url.Values{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestLogin_Strict(t *testing.T) {
	s := newTestServer(t, copyTranscoder{}, func(c *config.Config) { c.StrictLogin = true })
	u := s.register(t, "alice")

	resp := s.postForm(t, "/login/", url.Values{"username": {"alice"}})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = s.postForm(t, "/login/", url.Values{"username": {"alice"}, "token": {"nope"}})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = s.postForm(t, "/login/", url.Values{"username": {"alice"}, "token": {u.Token}})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestUploadAndFetch(t *testing.T) {
	s := newTestServer(t, copyTranscoder{}, nil)
	alice := s.register(t, "alice")
	bob := s.register(t, "bob")

	resp := s.upload(t, alice.UserID, alice.Token, "take1.wav", []byte("pretend-mp3-bytes"))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out struct {
		URL string `json:"url"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.True(t, strings.HasPrefix(out.URL, "http://audio.test/record?id="), out.URL)
	assert.Contains(t, out.URL, "user="+alice.UserID)

	get, err := http.Get(s.URL + recordPath(t, out.URL))
	require.NoError(t, err)
	defer get.Body.Close()
	require.Equal(t, http.StatusOK, get.StatusCode)
	assert.Equal(t, "audio/mpeg", get.Header.Get("Content-Type"))
	assert.Equal(t, "pretend-mp3-bytes", readBody(t, get))

	// Same id, another user.
	u, err := url.Parse(out.URL)
	require.NoError(t, err)
	id := u.Query().Get("id")
	other, err := http.Get(s.URL + "/record/?id=" + id + "&user=" + bob.UserID)
	require.NoError(t, err)
	defer other.Body.Close()
	assert.Equal(t, http.StatusNotFound, other.StatusCode)
}

func TestUpload_Errors(t *testing.T) {
	s := newTestServer(t, copyTranscoder{}, nil)
	alice := s.register(t, "alice")

	resp := s.upload(t, alice.UserID, alice.Token, "song.mp3", []byte("x"))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Format wins over bad credentials.
	resp = s.upload(t, alice.UserID, "bad", "song.mp3", []byte("x"))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = s.upload(t, alice.UserID, "bad", "song.wav", []byte("x"))
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	plain, err := http.Post(s.URL+"/upload-audio/", "text/plain", strings.NewReader("x"))
	require.NoError(t, err)
	defer plain.Body.Close()
	assert.Equal(t, http.StatusBadRequest, plain.StatusCode)
}

func TestUpload_TooLarge(t *testing.T) {
	s := newTestServer(t, copyTranscoder{}, func(c *config.Config) { c.MaxUploadBytes = 1024 })
	alice := s.register(t, "alice")

	resp := s.upload(t, alice.UserID, alice.Token, "big.wav", bytes.Repeat([]byte("a"), 4096))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUpload_TranscodeFailure(t *testing.T) {
	s := newTestServer(t, audio.NewFFmpegProcessor("ffmpeg", "192k"), nil)
	alice := s.register(t, "alice")

	resp := s.upload(t, alice.UserID, alice.Token, "broken.wav", []byte("not a riff file"))
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), "An error occurred while processing the audio")

	entries, err := os.ReadDir(s.storeDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestGetRecord_Errors(t *testing.T) {
	s := newTestServer(t, copyTranscoder{}, nil)

	for _, path := range []string{"/record/", "/record/?id=x", "/record?user=y"} {
		resp, err := http.Get(s.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, path)
	}

	resp, err := http.Get(s.URL + "/record/?id=missing&user=nobody")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGetRecord_MissingFile(t *testing.T) {
	s := newTestServer(t, copyTranscoder{}, nil)
	alice := s.register(t, "alice")

	resp := s.upload(t, alice.UserID, alice.Token, "a.wav", []byte("bytes"))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out struct {
		URL string `json:"url"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))

	entries, err := os.ReadDir(s.storeDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.NoError(t, os.Remove(filepath.Join(s.storeDir, entries[0].Name())))

	get, err := http.Get(s.URL + recordPath(t, out.URL))
	require.NoError(t, err)
	defer get.Body.Close()
	assert.Equal(t, http.StatusNotFound, get.StatusCode)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, copyTranscoder{}, nil)

	resp, err := http.Get(s.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, readBody(t, resp))

	h := &APIHandler{db: downDB{}}
	rec := httptest.NewRecorder()
	h.HealthHandler(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t, copyTranscoder{}, nil)

	req, err := http.NewRequest(http.MethodOptions, s.URL+"/upload-audio/", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "http://localhost:3000", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", resp.Header.Get("Access-Control-Allow-Credentials"))

	req.Header.Set("Origin", "http://evil.example")
	resp2, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Empty(t, resp2.Header.Get("Access-Control-Allow-Origin"))
}

func TestRecoveryMiddleware(t *testing.T) {
	h := recoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestToggleTrailingSlash(t *testing.T) {
	assert.Equal(t, "/users", toggleTrailingSlash("/users/"))
	assert.Equal(t, "/health/", toggleTrailingSlash("/health"))
	assert.Equal(t, "/", toggleTrailingSlash("/"))
	assert.Equal(t, "", toggleTrailingSlash(""))
}

func TestNewRouter_BothSlashForms(t *testing.T) {
	s := newTestServer(t, copyTranscoder{}, nil)

	for _, path := range []string{"/health", "/health/"} {
		resp, err := http.Get(s.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}
}

func writeToneWAV(t *testing.T, path string, sampleRate int, length time.Duration) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	data := make([]int, int(int64(sampleRate)*int64(length)/int64(time.Second)))
	for i := range data {
		if (i/50)%2 == 0 {
			data[i] = 10000
		} else {
			data[i] = -10000
		}
	}
	enc := wav.NewEncoder(f, sampleRate, 16, 1, 1)
	require.NoError(t, enc.Write(&goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}))
	require.NoError(t, enc.Close())
}

func TestRoundTrip_FFmpeg(t *testing.T) {
	ffmpeg, err := exec.LookPath("ffmpeg")
	if err != nil {
		t.Skip("ffmpeg not installed")
	}
	if _, err := exec.LookPath("ffprobe"); err != nil {
		t.Skip("ffprobe not installed")
	}

	processor := audio.NewFFmpegProcessor(ffmpeg, "128k")
	s := newTestServer(t, processor, nil)
	alice := s.register(t, "alice")

	wavPath := filepath.Join(t.TempDir(), "tone.wav")
	writeToneWAV(t, wavPath, 44100, 3*time.Second)
	content, err := os.ReadFile(wavPath)
	require.NoError(t, err)

	resp := s.upload(t, alice.UserID, alice.Token, "tone.wav", content)
	body := readBody(t, resp)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	var out struct {
		URL string `json:"url"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &out))

	get, err := http.Get(s.URL + recordPath(t, out.URL))
	require.NoError(t, err)
	defer get.Body.Close()
	require.Equal(t, http.StatusOK, get.StatusCode)

	mp3Path := filepath.Join(t.TempDir(), "fetched.mp3")
	data, err := io.ReadAll(get.Body)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(mp3Path, data, 0644))

	d, err := processor.GetAudioDuration(context.Background(), mp3Path)
	require.NoError(t, err)
	assert.InDelta(t, 3.0, d.Seconds(), 0.25)
}
