// internal/model/reply.go
package model

// ContentType tags how a reply body should be treated downstream
type ContentType string

const (
	// ContentTypeChunked marks stream-assembled text that may be an incomplete frame
	ContentTypeChunked ContentType = "chunked"
	ContentTypeJSON    ContentType = "json"
	ContentTypeText    ContentType = "text"
)

// Reply is a single reply read back from a connection
type Reply struct {
	Body        string            `json:"body"`
	ContentType ContentType       `json:"content_type"`
	Parameters  map[string]string `json:"parameters,omitempty"`
}

// NewReply creates a reply, defaulting the content type to text
func NewReply(body string, contentType ContentType) *Reply {
	if contentType == "" {
		contentType = ContentTypeText
	}
	return &Reply{Body: body, ContentType: contentType}
}

// Append extends the body with a further chunk
func (r *Reply) Append(chunk *Reply) {
	if chunk == nil {
		return
	}
	r.Body += chunk.Body
}
