package gateway

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/auditwatch/auditwatch/internal/models"
)

// ProgressFunc receives upload progress as a percentage from 0 to 100
type ProgressFunc func(percent int)

// ValidateUpload checks a project name and archive path before any I/O
func ValidateUpload(name, archivePath string) error {
	if !models.ValidProjectName(name) {
		return fmt.Errorf("%w: %q", ErrInvalidProjectName, name)
	}
	if !models.ValidArchive(archivePath) {
		return fmt.Errorf("%w: %s", ErrUnsupportedArchive, filepath.Base(archivePath))
	}
	return nil
}

// CreateProject uploads a source archive as a new project
func (c *Client) CreateProject(ctx context.Context, name, archivePath string, progress ProgressFunc) (string, error) {
	if err := ValidateUpload(name, archivePath); err != nil {
		return "", err
	}

	f, err := os.Open(archivePath)
	if err != nil {
		return "", fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("stat archive: %w", err)
	}

	body := &progressReader{r: f, total: info.Size(), fn: progress, last: -1}
	body.report()

	req, err := c.request(ctx, c.upload)
	if err != nil {
		return "", err
	}

	var out models.APIResponse[string]
	c.logger.Info("uploading archive",
		zap.String("project", name),
		zap.String("file", filepath.Base(archivePath)),
		zap.Int64("bytes", info.Size()))

	resp, err := req.
		SetQueryParam("projectName", name).
		SetFileReader("file", filepath.Base(archivePath), body).
		SetResult(&out).
		SetError(&out).
		Post("/projects/create")
	if err != nil {
		return "", c.recordError(fmt.Errorf("upload %s: %w", name, err))
	}
	if err := checkResponse(resp, out); err != nil {
		return "", c.recordError(err)
	}

	body.finish()
	if out.Result == nil {
		return "", nil
	}
	return *out.Result, nil
}

type progressReader struct {
	r     io.Reader
	total int64
	read  int64
	last  int
	fn    ProgressFunc
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	p.read += int64(n)
	p.report()
	return n, err
}

func (p *progressReader) report() {
	if p.fn == nil {
		return
	}
	pct := 100
	if p.total > 0 {
		pct = int(p.read * 100 / p.total)
	}
	// 100 is reserved for a confirmed upload
	if pct >= 100 {
		pct = 99
	}
	if pct != p.last {
		p.last = pct
		p.fn(pct)
	}
}

func (p *progressReader) finish() {
	if p.fn != nil && p.last != 100 {
		p.last = 100
		p.fn(100)
	}
}
