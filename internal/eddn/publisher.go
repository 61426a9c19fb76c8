package eddn

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"ocellus/internal/logging"
)

// uploaderSetting is the settings key the uploader id is kept under.
const uploaderSetting = "eddn.uploader_id"

// Settings is the key/value store the uploader id lives in.
type Settings interface {
	GetSetting(ctx context.Context, key string) (string, bool, error)
	SetSetting(ctx context.Context, key, value string) error
}

// UploaderID returns the persisted uploader id, minting one on first use.
func UploaderID(ctx context.Context, s Settings) (string, error) {
	id, ok, err := s.GetSetting(ctx, uploaderSetting)
	if err != nil {
		return "", err
	}
	if ok && id != "" {
		return id, nil
	}
	id = uuid.NewString()
	if err := s.SetSetting(ctx, uploaderSetting, id); err != nil {
		return "", err
	}
	logging.EDDN("minted uploader id %s", id)
	return id, nil
}

// Config configures a Publisher.
type Config struct {
	UploadURL       string
	SoftwareName    string
	SoftwareVersion string
	Timeout         time.Duration
	// Test tags every schema with /test so the relay discards the data.
	Test bool
}

// Publisher posts snapshots to the relay.
type Publisher struct {
	cfg    Config
	header Header
	client *http.Client
	log    *logging.Logger
}

// NewPublisher creates a publisher that identifies itself as uploaderID.
func NewPublisher(cfg Config, uploaderID string) *Publisher {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Publisher{
		cfg: cfg,
		header: Header{
			UploaderID:      uploaderID,
			SoftwareName:    cfg.SoftwareName,
			SoftwareVersion: cfg.SoftwareVersion,
		},
		client: &http.Client{Timeout: timeout},
		log:    logging.Get(logging.CategoryEDDN).With("uploader", uploaderID),
	}
}

// Publish uploads every message the snapshot yields. It stops at the first
// rejected message.
func (p *Publisher) Publish(ctx context.Context, snap Snapshot) (int, error) {
	timer := logging.StartTimer(logging.CategoryEDDN, "Publish")
	defer timer.Stop()

	envelopes, err := snap.Envelopes(p.header, p.cfg.Test)
	if err != nil {
		return 0, err
	}
	sent := 0
	for _, env := range envelopes {
		if err := p.post(ctx, env); err != nil {
			return sent, err
		}
		sent++
	}
	p.log.Info("uploaded %d message(s) for %s", sent, *snap.Facts.CurrentStarport)
	return sent, nil
}

func (p *Publisher) post(ctx context.Context, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode %s: %w", env.SchemaRef, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.UploadURL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("upload %s: %w", env.SchemaRef, err)
	}
	defer resp.Body.Close()
	reply, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode/100 != 2 {
		logging.EDDNWarn("%s rejected with %s", env.SchemaRef, resp.Status)
		return fmt.Errorf("upload %s: %s: %s", env.SchemaRef, resp.Status, bytes.TrimSpace(reply))
	}
	p.log.Debug("%s accepted: %s", env.SchemaRef, bytes.TrimSpace(reply))
	return nil
}

// Close releases idle relay connections.
func (p *Publisher) Close() {
	p.client.CloseIdleConnections()
}
