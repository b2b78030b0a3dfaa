// Package message decodes raw RFC 822 emails into a tree of MIME parts and
// pulls a readable text body out of them.
package message

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"strings"
	"time"

	"golang.org/x/text/encoding/htmlindex"
)

// maxDepth bounds multipart nesting
const maxDepth = 16

// Part is one node of a MIME tree. Multipart nodes have Children and no Body;
// leaves carry a Body already decoded from its transfer encoding and charset.
type Part struct {
	ContentType string
	Params      map[string]string
	Disposition string
	Body        []byte
	Children    []*Part
}

// IsLeaf reports whether the part carries a payload rather than sub-parts
func (p *Part) IsLeaf() bool {
	return len(p.Children) == 0
}

// Walk calls visit for p and then each descendant, depth first, in document order.
// A non-nil error from visit stops the walk and is returned.
func (p *Part) Walk(visit func(*Part) error) error {
	if err := visit(p); err != nil {
		return err
	}
	for _, child := range p.Children {
		if err := child.Walk(visit); err != nil {
			return err
		}
	}
	return nil
}

// Message is a decoded email
type Message struct {
	Subject   string
	From      string
	MessageID string
	Date      time.Time
	Root      *Part

	raw []byte
}

type header interface {
	Get(key string) string
}

var wordDecoder = &mime.WordDecoder{CharsetReader: charsetReader}

// Parse decodes a raw RFC 822 message
func Parse(raw []byte) (*Message, error) {
	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("reading message: %w", err)
	}

	root, err := parsePart(msg.Header, msg.Body, 0)
	if err != nil {
		return nil, err
	}

	m := &Message{
		Subject:   decodeHeader(msg.Header.Get("Subject")),
		From:      decodeHeader(msg.Header.Get("From")),
		MessageID: strings.Trim(strings.TrimSpace(msg.Header.Get("Message-Id")), "<>"),
		Root:      root,
		raw:       raw,
	}
	if date, err := msg.Header.Date(); err == nil {
		m.Date = date
	}
	return m, nil
}

// IdempotencyKey identifies the message for deduplication: its Message-Id,
// or a SHA-256 of the raw bytes when the header is missing
func (m *Message) IdempotencyKey() string {
	if m.MessageID != "" {
		return m.MessageID
	}
	sum := sha256.Sum256(m.raw)
	return "sha256:" + hex.EncodeToString(sum[:])
}

var errFound = errors.New("found")

// Text returns the first inline text/plain body, falling back to the first
// text/html body rendered as plain text
func (m *Message) Text() string {
	if body := m.firstLeaf("text/plain"); body != nil {
		return strings.TrimSpace(string(body))
	}
	if body := m.firstLeaf("text/html"); body != nil {
		return htmlToText(bytes.NewReader(body))
	}
	return ""
}

func (m *Message) firstLeaf(contentType string) []byte {
	var body []byte
	m.Root.Walk(func(p *Part) error {
		if p.IsLeaf() && p.ContentType == contentType && p.Disposition != "attachment" {
			body = p.Body
			return errFound
		}
		return nil
	})
	return body
}

func parsePart(h header, body io.Reader, depth int) (*Part, error) {
	if depth > maxDepth {
		return nil, fmt.Errorf("MIME nesting deeper than %d", maxDepth)
	}

	part := &Part{ContentType: "text/plain", Params: map[string]string{}}
	if ct := h.Get("Content-Type"); ct != "" {
		mediaType, params, err := mime.ParseMediaType(ct)
		if err == nil {
			part.ContentType = mediaType
			part.Params = params
		}
	}
	if cd := h.Get("Content-Disposition"); cd != "" {
		if disposition, _, err := mime.ParseMediaType(cd); err == nil {
			part.Disposition = disposition
		}
	}

	if strings.HasPrefix(part.ContentType, "multipart/") {
		boundary := part.Params["boundary"]
		if boundary == "" {
			return nil, fmt.Errorf("multipart part without boundary")
		}
		mr := multipart.NewReader(body, boundary)
		for {
			p, err := mr.NextRawPart()
			if err == io.EOF {
				break
			}
			if err != nil {
				return nil, fmt.Errorf("reading multipart section: %w", err)
			}
			child, err := parsePart(p.Header, p, depth+1)
			if err != nil {
				return nil, err
			}
			part.Children = append(part.Children, child)
		}
		return part, nil
	}

	decoded, err := io.ReadAll(transferDecoder(h.Get("Content-Transfer-Encoding"), body))
	if err != nil {
		return nil, fmt.Errorf("decoding %s body: %w", part.ContentType, err)
	}
	part.Body = toUTF8(decoded, part.Params["charset"])
	return part, nil
}

func transferDecoder(encoding string, r io.Reader) io.Reader {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "base64":
		return base64.NewDecoder(base64.StdEncoding, r)
	case "quoted-printable":
		return quotedprintable.NewReader(r)
	default:
		return r
	}
}

// toUTF8 converts body from charset; unknown charsets are passed through
func toUTF8(body []byte, charset string) []byte {
	charset = strings.ToLower(strings.TrimSpace(charset))
	if charset == "" || charset == "utf-8" || charset == "us-ascii" {
		return body
	}
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return body
	}
	out, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		return body
	}
	return out
}

func charsetReader(charset string, input io.Reader) (io.Reader, error) {
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return nil, err
	}
	return enc.NewDecoder().Reader(input), nil
}

func decodeHeader(v string) string {
	decoded, err := wordDecoder.DecodeHeader(v)
	if err != nil {
		return strings.TrimSpace(v)
	}
	return strings.TrimSpace(decoded)
}
