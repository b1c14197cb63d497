package managers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
)

// ModerationVerdict is the classifier's answer for an uploaded image.
type ModerationVerdict struct {
	Approved bool   `json:"approved"`
	Label    string `json:"label,omitempty"`
}

// ModerationMgr is the contract the profile-picture upload depends on. The
// classification itself (model, thumbnailing, transcoding) lives behind this
// interface and outside this repository.
type ModerationMgr interface {
	CheckProfilePicture(ctx context.Context, image []byte, contentType string) (*ModerationVerdict, error)
}

// RemoteModerator posts the image to an external classifier service and relays
// its verdict. With no classifier configured every image is approved, which is
// the development-mode behavior.
type RemoteModerator struct {
	endpoint string
	client   *http.Client
}

// NewModerationManager returns the moderation gate for the given classifier
// endpoint. An empty endpoint yields the approve-all development behavior.
func NewModerationManager(endpoint string) ModerationMgr {
	log.Info("Initializing moderation manager")

	if endpoint == "" {
		log.Println("No moderation endpoint configured, profile pictures will not be classified")
	}

	return &RemoteModerator{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

// CheckProfilePicture classifies the image. A classifier outage is an error,
// not an approval: the upload path fails closed.
func (rm *RemoteModerator) CheckProfilePicture(ctx context.Context, image []byte, contentType string) (*ModerationVerdict, error) {
	if rm.endpoint == "" {
		return &ModerationVerdict{Approved: true}, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rm.endpoint, bytes.NewReader(image))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := rm.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("moderation service returned status %d", resp.StatusCode)
	}

	verdict := &ModerationVerdict{}
	if err := json.NewDecoder(resp.Body).Decode(verdict); err != nil {
		return nil, err
	}

	return verdict, nil
}
