package indexer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/kbforge/kbsync/internal/delta"
	"github.com/kbforge/kbsync/internal/domain"
	"github.com/kbforge/kbsync/internal/fetcher"
	"github.com/kbforge/kbsync/internal/utils"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	listPageLimit  = 100
)

// Client talks to an OpenAI vector store, the remote semantic index the
// question-answering agent searches. Each segment is uploaded as one
// file named after its deterministic segment id; the id's identity-hash
// prefix lets the client find and replace a document's whole segment
// set without any server-side mapping.
type Client struct {
	baseURL       string
	apiKey        string
	vectorStoreID string
	httpClient    *http.Client
	retrier       *fetcher.Retrier
	logger        *utils.Logger
	progress      bool
}

// Options contains options for creating a Client
type Options struct {
	BaseURL       string
	APIKey        string
	VectorStoreID string
	Timeout       time.Duration
	Retrier       fetcher.RetrierOptions
	Logger        *utils.Logger
	Progress      bool
}

// NewClient creates a new vector store client
func NewClient(opts Options) (*Client, error) {
	if opts.APIKey == "" {
		return nil, domain.NewConfigurationError("index.api_key", "must be set")
	}
	if opts.VectorStoreID == "" {
		return nil, domain.NewConfigurationError("index.vector_store_id", "must be set")
	}
	if opts.BaseURL == "" {
		opts.BaseURL = defaultBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}

	logger := opts.Logger
	if logger == nil {
		logger = utils.NewDefaultLogger()
	}

	return &Client{
		baseURL:       strings.TrimSuffix(opts.BaseURL, "/"),
		apiKey:        opts.APIKey,
		vectorStoreID: opts.VectorStoreID,
		httpClient:    &http.Client{Timeout: opts.Timeout},
		retrier:       fetcher.NewRetrier(opts.Retrier),
		logger:        logger.WithComponent("indexer"),
		progress:      opts.Progress,
	}, nil
}

var _ domain.Indexer = (*Client)(nil)

// remoteFile is one file attached to the vector store.
type remoteFile struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	Filename string `json:"filename"`
	Error    struct {
		Message string `json:"message"`
	} `json:"last_error"`
}

// Apply reconciles the remote index with the plan: for every deletion
// it removes the identity's files, and for every upsert it replaces the
// document's files as a unit (delete stale, upload new, attach). The
// identity snapshot is not touched here; the orchestrator commits it
// only after Apply returns success.
func (c *Client) Apply(ctx context.Context, plan *domain.SyncPlan) error {
	if plan.Empty() {
		return nil
	}

	existing, err := c.listFiles(ctx)
	if err != nil {
		return err
	}

	var bar *progressbar.ProgressBar
	if c.progress {
		bar = progressbar.Default(int64(len(plan.Deletions)+len(plan.Upserts)), "syncing index")
	}

	for _, identity := range plan.Deletions {
		if err := c.removeIdentityFiles(ctx, identity, existing); err != nil {
			return err
		}
		c.logger.Debug().Str("identity", identity).Msg("Removed from index")
		advance(bar)
	}

	for _, upsert := range plan.Upserts {
		if err := c.removeIdentityFiles(ctx, upsert.Identity, existing); err != nil {
			return err
		}
		for _, seg := range upsert.Segments {
			if err := c.uploadSegment(ctx, seg); err != nil {
				return err
			}
		}
		c.logger.Debug().
			Str("identity", upsert.Identity).
			Int("segments", len(upsert.Segments)).
			Msg("Replaced in index")
		advance(bar)
	}

	return nil
}

// Close releases resources
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// FileReport describes the processing state of one indexed file.
type FileReport struct {
	ID       string
	Filename string
	Status   string
	Error    string
}

// Status reports the processing state of every file in the vector
// store, flagging files the index failed to process.
func (c *Client) Status(ctx context.Context) ([]FileReport, error) {
	files, err := c.listFiles(ctx)
	if err != nil {
		return nil, err
	}

	reports := make([]FileReport, 0, len(files))
	for _, f := range files {
		reports = append(reports, FileReport{
			ID:       f.ID,
			Filename: f.Filename,
			Status:   f.Status,
			Error:    f.Error.Message,
		})
	}
	return reports, nil
}

// removeIdentityFiles detaches and deletes every file whose name starts
// with the identity's hash prefix.
func (c *Client) removeIdentityFiles(ctx context.Context, identity string, existing []remoteFile) error {
	prefix := delta.IdentityKey(identity) + "-"
	for _, f := range existing {
		if !strings.HasPrefix(f.Filename, prefix) {
			continue
		}
		if err := c.deleteFile(ctx, f.ID); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) uploadSegment(ctx context.Context, seg domain.Segment) error {
	fileID, err := fetcher.RetryWithValue(ctx, c.retrier, func() (string, error) {
		return c.uploadFile(ctx, seg.ID+".md", seg.Text)
	})
	if err != nil {
		return err
	}

	return c.retrier.Retry(ctx, func() error {
		return c.attachFile(ctx, fileID)
	})
}

func (c *Client) uploadFile(ctx context.Context, filename, content string) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	if err := mw.WriteField("purpose", "assistants"); err != nil {
		return "", err
	}
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return "", err
	}
	if _, err := io.WriteString(part, content); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/files", &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var resp struct {
		ID string `json:"id"`
	}
	if err := c.do(req, "upload", &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

func (c *Client) attachFile(ctx context.Context, fileID string) error {
	payload, _ := json.Marshal(map[string]string{"file_id": fileID})
	url := fmt.Sprintf("%s/vector_stores/%s/files", c.baseURL, c.vectorStoreID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, "attach", nil)
}

func (c *Client) deleteFile(ctx context.Context, fileID string) error {
	return c.retrier.Retry(ctx, func() error {
		url := fmt.Sprintf("%s/vector_stores/%s/files/%s", c.baseURL, c.vectorStoreID, fileID)
		req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
		if err != nil {
			return err
		}
		if err := c.do(req, "detach", nil); err != nil {
			return err
		}

		req, err = http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/files/"+fileID, nil)
		if err != nil {
			return err
		}
		return c.do(req, "delete", nil)
	})
}

// listFiles walks the vector store file listing and resolves each
// file's name through the files API.
func (c *Client) listFiles(ctx context.Context) ([]remoteFile, error) {
	var files []remoteFile
	after := ""

	for {
		url := fmt.Sprintf("%s/vector_stores/%s/files?limit=%d", c.baseURL, c.vectorStoreID, listPageLimit)
		if after != "" {
			url += "&after=" + after
		}

		page, err := fetcher.RetryWithValue(ctx, c.retrier, func() (*fileListPage, error) {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
			if err != nil {
				return nil, err
			}
			var p fileListPage
			if err := c.do(req, "list", &p); err != nil {
				return nil, err
			}
			return &p, nil
		})
		if err != nil {
			return nil, err
		}

		for _, f := range page.Data {
			if f.Filename == "" {
				name, err := c.fileName(ctx, f.ID)
				if err != nil {
					return nil, err
				}
				f.Filename = name
			}
			files = append(files, f)
		}

		if !page.HasMore || page.LastID == "" {
			break
		}
		after = page.LastID
	}

	return files, nil
}

type fileListPage struct {
	Data    []remoteFile `json:"data"`
	HasMore bool         `json:"has_more"`
	LastID  string       `json:"last_id"`
}

func (c *Client) fileName(ctx context.Context, fileID string) (string, error) {
	return fetcher.RetryWithValue(ctx, c.retrier, func() (string, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/files/"+fileID, nil)
		if err != nil {
			return "", err
		}
		var resp struct {
			Filename string `json:"filename"`
		}
		if err := c.do(req, "file", &resp); err != nil {
			return "", err
		}
		return resp.Filename, nil
	})
}

// do executes a request with auth headers and decodes the response.
func (c *Client) do(req *http.Request, operation string, out any) error {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("OpenAI-Beta", "assistants=v2")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.NewIndexError(operation, 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return domain.NewIndexError(operation, resp.StatusCode,
			fmt.Errorf("unexpected status %s: %s", resp.Status, strings.TrimSpace(string(body))))
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func advance(bar *progressbar.ProgressBar) {
	if bar != nil {
		_ = bar.Add(1)
	}
}
