package ingest

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/comps/internal/resilience"
)

// Format is the file format of an export.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// DetectFormat infers the format from a path or URL extension.
func DetectFormat(location string) Format {
	p := location
	if u, err := url.Parse(location); err == nil && u.Scheme != "" {
		p = u.Path
	}
	switch strings.ToLower(path.Ext(p)) {
	case ".xlsx":
		return FormatXLSX
	default:
		return FormatCSV
	}
}

// OpenOptions configures remote reads.
type OpenOptions struct {
	Timeout    time.Duration
	Retry      resilience.RetryConfig
	HTTPClient *http.Client
}

// Open returns a reader for a local path or an http(s):// or ftp:// URL.
// The caller must close it.
func Open(ctx context.Context, location string, opts OpenOptions) (io.ReadCloser, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	u, err := url.Parse(location)
	if err != nil || u.Scheme == "" || len(u.Scheme) == 1 {
		f, err := os.Open(location)
		if err != nil {
			return nil, eris.Wrapf(err, "ingest: open %s", location)
		}
		return f, nil
	}

	switch u.Scheme {
	case "file":
		f, err := os.Open(u.Path)
		if err != nil {
			return nil, eris.Wrapf(err, "ingest: open %s", u.Path)
		}
		return f, nil
	case "http", "https":
		return openHTTP(ctx, u, opts)
	case "ftp":
		return openFTP(ctx, u, opts)
	default:
		return nil, eris.Errorf("ingest: unsupported scheme %q", u.Scheme)
	}
}

func openHTTP(ctx context.Context, u *url.URL, opts OpenOptions) (io.ReadCloser, error) {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	retry := opts.Retry
	if retry.OnRetry == nil {
		retry.OnRetry = resilience.LogRetry("ingest.http_get")
	}

	return resilience.DoVal(ctx, retry, func(ctx context.Context) (io.ReadCloser, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return nil, eris.Wrap(err, "ingest: create request")
		}
		req.Header.Set("User-Agent", "comps-import/1.0")

		resp, err := client.Do(req)
		if err != nil {
			return nil, eris.Wrapf(err, "ingest: get %s", u.Redacted())
		}
		if resp.StatusCode != http.StatusOK {
			_ = resp.Body.Close()
			err := eris.Errorf("ingest: get %s: http %d", u.Redacted(), resp.StatusCode)
			if resilience.IsTransientHTTPStatus(resp.StatusCode) {
				return nil, resilience.NewTransientError(err, resp.StatusCode)
			}
			return nil, err
		}
		return resp.Body, nil
	})
}

// ftpReader closes the FTP response and the connection together.
type ftpReader struct {
	resp *ftp.Response
	conn *ftp.ServerConn
}

func (r *ftpReader) Read(p []byte) (int, error) {
	return r.resp.Read(p)
}

func (r *ftpReader) Close() error {
	respErr := r.resp.Close()
	quitErr := r.conn.Quit()
	if respErr != nil {
		return eris.Wrap(respErr, "ingest: close ftp response")
	}
	return eris.Wrap(quitErr, "ingest: quit ftp connection")
}

func openFTP(ctx context.Context, u *url.URL, opts OpenOptions) (io.ReadCloser, error) {
	host := u.Host
	if _, _, err := net.SplitHostPort(host); err != nil {
		host = net.JoinHostPort(host, "21")
	}
	if u.Path == "" {
		return nil, eris.New("ingest: empty path in ftp url")
	}

	user, pass := "anonymous", "anonymous@"
	if u.User != nil {
		user = u.User.Username()
		if p, ok := u.User.Password(); ok {
			pass = p
		}
	}

	zap.L().Debug("ingest: ftp connecting", zap.String("host", host), zap.String("path", u.Path))

	conn, err := ftp.Dial(host, ftp.DialWithTimeout(opts.Timeout), ftp.DialWithContext(ctx))
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: ftp dial %s", host)
	}
	if err := conn.Login(user, pass); err != nil {
		_ = conn.Quit()
		return nil, eris.Wrap(err, "ingest: ftp login")
	}
	resp, err := conn.Retr(u.Path)
	if err != nil {
		_ = conn.Quit()
		return nil, eris.Wrapf(err, "ingest: ftp retrieve %s", u.Path)
	}
	return &ftpReader{resp: resp, conn: conn}, nil
}
