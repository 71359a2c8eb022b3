// Package export renders figures and stores the image together with the
// figure data in an artifact store.
package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strconv"
	"time"

	"github.com/google/uuid"

	"ephyscore/internal/blob"
	"ephyscore/internal/figures"
)

// Prefix is the root of every published artifact key.
const Prefix = "figures"

// Renderer draws a figure as PNG.
type Renderer interface {
	PNG(fig figures.Figure) ([]byte, error)
}

// Artifact describes one published figure.
type Artifact struct {
	ID     string    `json:"id"`
	Figure string    `json:"figure"`
	Image  blob.Info `json:"image"`
	Data   blob.Info `json:"data"`
}

// Publisher writes rendered figures to a blob store.
type Publisher struct {
	store    blob.Store
	renderer Renderer
	newID    func() string
	now      func() time.Time
}

// NewPublisher returns a publisher writing to store.
func NewPublisher(store blob.Store, renderer Renderer) *Publisher {
	return &Publisher{
		store:    store,
		renderer: renderer,
		newID:    func() string { return uuid.NewString() },
		now:      time.Now,
	}
}

// Keys returns the image and data keys used for a figure and artifact id.
func Keys(figure, id string) (image, data string) {
	base := path.Join(Prefix, figure, id)
	return base + ".png", base + ".json"
}

// Publish renders fig and stores the PNG and its JSON description. The figure
// data is encoded before anything is written so a figure that cannot be
// serialized leaves no artifacts behind.
func (p *Publisher) Publish(ctx context.Context, fig figures.Figure) (Artifact, error) {
	if fig.Name == "" {
		return Artifact{}, fmt.Errorf("publish: figure has no name")
	}
	data, err := json.Marshal(fig)
	if err != nil {
		return Artifact{}, fmt.Errorf("publish %s: encode figure: %w", fig.Name, err)
	}
	img, err := p.renderer.PNG(fig)
	if err != nil {
		return Artifact{}, fmt.Errorf("publish %s: %w", fig.Name, err)
	}

	id := p.newID()
	imageKey, dataKey := Keys(fig.Name, id)
	meta := map[string]string{
		"figure":     fig.Name,
		"artifact":   id,
		"panels":     strconv.Itoa(len(fig.Panels)),
		"created_at": p.now().UTC().Format(time.RFC3339),
	}
	art := Artifact{ID: id, Figure: fig.Name}
	if art.Image, err = p.store.Put(ctx, imageKey, bytes.NewReader(img), blob.PutOptions{ContentType: blob.ContentTypePNG, Metadata: meta}); err != nil {
		return Artifact{}, fmt.Errorf("publish %s: store image: %w", fig.Name, err)
	}
	if art.Data, err = p.store.Put(ctx, dataKey, bytes.NewReader(data), blob.PutOptions{ContentType: blob.ContentTypeJSON, Metadata: meta}); err != nil {
		if _, derr := p.store.Delete(ctx, imageKey); derr != nil {
			return Artifact{}, fmt.Errorf("publish %s: store data: %w (cleanup: %v)", fig.Name, err, derr)
		}
		return Artifact{}, fmt.Errorf("publish %s: store data: %w", fig.Name, err)
	}
	return art, nil
}

// List returns the stored artifacts of one figure, or of every figure when
// figure is empty.
func (p *Publisher) List(ctx context.Context, figure string) ([]blob.Info, error) {
	prefix := Prefix + "/"
	if figure != "" {
		prefix = path.Join(Prefix, figure) + "/"
	}
	return p.store.List(ctx, prefix)
}
