package sdk

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"

	"github.com/mbeoliero/nexo-chat/pkg/errcode"
)

// Upload posts a file as multipart form field "file" and returns its stored URL
func (c *Client) Upload(ctx context.Context, filename string, r io.Reader) (*UploadResult, error) {
	if filename == "" || r == nil {
		return nil, errcode.ErrInvalidParam.WithMsg("file is required")
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart body: %w", err)
	}

	resp, err := c.postMultipart(ctx, "/upload", w.FormDataContentType(), &body)
	if err != nil {
		return nil, err
	}

	data := resp.Data()
	return &UploadResult{URL: data.Get("url").String(), Raw: []byte(data.Raw)}, nil
}
