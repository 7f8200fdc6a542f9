package source

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bitey-pm/bitey/pkg/remote"
	"github.com/bitey-pm/bitey/pkg/source/sourcetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(opts Options) *Client {
	opts.Backoff = time.Millisecond
	opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewClient(opts)
}

func TestParseIndex(t *testing.T) {
	tests := map[string]struct {
		body string
		want []string
	}{
		"plain":              {body: "a\nb\nc\n", want: []string{"a", "b", "c"}},
		"no trailing":        {body: "a\nb", want: []string{"a", "b"}},
		"blanks and comment": {body: "# packages\n\na\n  \n b \n", want: []string{"a", "b"}},
		"crlf":               {body: "a\r\nb\r\n", want: []string{"a", "b"}},
		"empty":              {body: "", want: nil},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, parseIndex([]byte(tc.body)))
		})
	}
}

func TestLocate(t *testing.T) {
	alpha := sourcetest.NewRemote(t)
	alpha.AddPackage(sourcetest.Manifest("tool", "1.0"))
	beta := sourcetest.NewRemote(t)
	beta.AddPackage(sourcetest.Manifest("tool", "2.0"))
	beta.AddPackage(sourcetest.Manifest("extra", "1.0"))

	remotes := []remote.Remote{
		{Name: "alpha", URL: alpha.URL},
		{Name: "beta", URL: beta.URL},
	}

	tests := map[string]struct {
		pkg  string
		want string
	}{
		"listed by both picks first": {pkg: "tool", want: "alpha"},
		"listed by second only":      {pkg: "extra", want: "beta"},
	}

	for _, concurrency := range []int{1, 4} {
		c := newTestClient(Options{Concurrency: concurrency})
		for name, tc := range tests {
			t.Run(name, func(t *testing.T) {
				// Repeated runs must agree regardless of fetch timing.
				for range 5 {
					got, err := c.Locate(context.Background(), tc.pkg, remotes)
					require.NoError(t, err)
					assert.Equal(t, tc.want, got.Name)
				}
			})
		}
	}
}

func TestLocateSequentialStopsAtFirstMatch(t *testing.T) {
	alpha := sourcetest.NewRemote(t)
	alpha.AddPackage(sourcetest.Manifest("tool", "1.0"))
	beta := sourcetest.NewRemote(t)

	c := newTestClient(Options{})
	got, err := c.Locate(context.Background(), "tool", []remote.Remote{
		{Name: "alpha", URL: alpha.URL},
		{Name: "beta", URL: beta.URL},
	})
	require.NoError(t, err)
	assert.Equal(t, "alpha", got.Name)
	assert.Equal(t, 0, beta.Hits("/list.txt"))
}

func TestLocateSkipsFailingRemote(t *testing.T) {
	broken := sourcetest.NewRemote(t)
	broken.SetStatus("/list.txt", http.StatusInternalServerError)
	good := sourcetest.NewRemote(t)
	good.AddPackage(sourcetest.Manifest("tool", "1.0"))

	c := newTestClient(Options{Retries: 1})
	got, err := c.Locate(context.Background(), "tool", []remote.Remote{
		{Name: "a-broken", URL: broken.URL},
		{Name: "b-good", URL: good.URL},
	})
	require.NoError(t, err)
	assert.Equal(t, "b-good", got.Name)
	assert.Equal(t, 2, broken.Hits("/list.txt"), "5xx should be retried once")
}

func TestLocateNotFound(t *testing.T) {
	r := sourcetest.NewRemote(t)
	r.AddPackage(sourcetest.Manifest("tool", "1.0"))
	r.AddPackage(sourcetest.Manifest("zlib", "1.0"))

	c := newTestClient(Options{})
	_, err := c.Locate(context.Background(), "tol", []remote.Remote{{Name: "main", URL: r.URL}})
	require.ErrorIs(t, err, ErrPackageNotFound)

	var nf *PackageNotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "tol", nf.Name)
	assert.Contains(t, nf.Suggestions, "tool")
	assert.Contains(t, err.Error(), "did you mean")

	_, err = c.Locate(context.Background(), "tool", nil)
	assert.ErrorIs(t, err, ErrPackageNotFound)
}

func TestResolve(t *testing.T) {
	r := sourcetest.NewRemote(t)
	r.AddPackage(sourcetest.Manifest("app", "1.0", "lib"))
	r.AddRaw("alias", []byte("name: other\nversion: \"3\"\ninstall:\n  commands: \"true\"\n"))
	r.AddRaw("broken", []byte("name: broken\n"))
	r.SetFile("/badptr.yml", []byte("location: somewhere\n"))

	c := newTestClient(Options{})

	t.Run("success", func(t *testing.T) {
		res, err := c.Resolve(context.Background(), r.URL, "app")
		require.NoError(t, err)
		assert.Equal(t, "app", res.Name)
		assert.Equal(t, r.URL, res.RemoteURL)
		assert.Equal(t, "1.0", res.Manifest.Version)
		assert.Equal(t, []string{"lib"}, res.Manifest.Dependencies)
		assert.Equal(t, r.ManifestURL("app"), res.Pointer.URL)
		assert.Contains(t, string(res.RawPointer), r.ManifestURL("app"))
	})

	t.Run("manifest name mismatch keeps requested name", func(t *testing.T) {
		res, err := c.Resolve(context.Background(), r.URL, "alias")
		require.NoError(t, err)
		assert.Equal(t, "alias", res.Name)
		assert.Equal(t, "other", res.Manifest.Name)
	})

	errTests := map[string]struct {
		pkg       string
		wantKind  error
		wantStage Stage
	}{
		"missing pointer":    {pkg: "ghost", wantKind: ErrDocumentNotFound, wantStage: StagePointer},
		"malformed pointer":  {pkg: "badptr", wantKind: ErrMalformedDocument, wantStage: StagePointer},
		"malformed manifest": {pkg: "broken", wantKind: ErrMalformedDocument, wantStage: StageManifest},
	}
	for name, tc := range errTests {
		t.Run(name, func(t *testing.T) {
			_, err := c.Resolve(context.Background(), r.URL, tc.pkg)
			require.ErrorIs(t, err, tc.wantKind)

			var fe *FetchError
			require.ErrorAs(t, err, &fe)
			assert.Equal(t, tc.wantStage, fe.Stage)
		})
	}

	t.Run("invalid name", func(t *testing.T) {
		_, err := c.Resolve(context.Background(), r.URL, "../escape")
		require.Error(t, err)
	})
}

func TestResolveUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := newTestClient(Options{})
	_, err := c.Resolve(context.Background(), url, "app")
	require.ErrorIs(t, err, ErrRemoteUnreachable)
	assert.NotErrorIs(t, err, ErrDocumentNotFound)
}

func TestClientErrorStatusIsUnreachable(t *testing.T) {
	r := sourcetest.NewRemote(t)
	r.SetStatus("/app.yml", http.StatusForbidden)

	c := newTestClient(Options{Retries: 3})
	_, err := c.Resolve(context.Background(), r.URL, "app")
	require.ErrorIs(t, err, ErrRemoteUnreachable)

	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, http.StatusForbidden, fe.StatusCode)
	assert.Equal(t, 1, r.Hits("/app.yml"), "4xx must not be retried")
}

func TestRetryTransientFailure(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		io.WriteString(w, "tool\n")
	}))
	t.Cleanup(srv.Close)

	tests := map[string]struct {
		retries uint64
		wantErr bool
	}{
		"no retries fails":     {retries: 0, wantErr: true},
		"one retry recovers":   {retries: 1},
		"extra retries unused": {retries: 3},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			calls.Store(0)
			c := newTestClient(Options{Retries: tc.retries})
			names, err := c.FetchIndex(context.Background(), srv.URL)
			if tc.wantErr {
				require.ErrorIs(t, err, ErrRemoteUnreachable)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, []string{"tool"}, names)
			assert.EqualValues(t, 2, calls.Load())
		})
	}
}

func TestDownload(t *testing.T) {
	r := sourcetest.NewRemote(t)
	payload := []byte("not really an archive")
	r.SetFile("/dist/app.tar.gz", payload)

	c := newTestClient(Options{})
	dir := t.TempDir()

	t.Run("success", func(t *testing.T) {
		dest := filepath.Join(dir, "app.bitey.pkg")
		n, err := c.Download(context.Background(), r.URL+"/dist/app.tar.gz", dest)
		require.NoError(t, err)
		assert.EqualValues(t, len(payload), n)

		got, err := os.ReadFile(dest)
		require.NoError(t, err)
		assert.Equal(t, payload, got)
	})

	t.Run("not found leaves no file", func(t *testing.T) {
		dest := filepath.Join(dir, "missing.bitey.pkg")
		_, err := c.Download(context.Background(), r.URL+"/dist/missing.tar.gz", dest)
		require.ErrorIs(t, err, ErrDocumentNotFound)

		var fe *FetchError
		require.ErrorAs(t, err, &fe)
		assert.Equal(t, StageArchive, fe.Stage)

		_, statErr := os.Stat(dest)
		assert.True(t, errors.Is(statErr, os.ErrNotExist))
	})
}

func TestNewClientDefaults(t *testing.T) {
	c := NewClient(Options{Insecure: true})
	assert.True(t, c.Insecure())
	assert.Equal(t, DefaultTimeout, c.opts.Timeout)
	assert.Equal(t, DefaultDownloadTimeout, c.opts.DownloadTimeout)

	transport := c.http.Transport.(*http.Transport)
	require.NotNil(t, transport.TLSClientConfig)
	assert.True(t, transport.TLSClientConfig.InsecureSkipVerify)
}
