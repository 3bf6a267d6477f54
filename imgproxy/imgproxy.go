package imgproxy

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
)

// ErrInvalidImageURL flags image URLs the proxy cannot fetch.
var ErrInvalidImageURL = errors.New("imgproxy: invalid image URL")

// Signer rewrites upstream image URLs to proxy URLs. Implementations are
// pure and safe for concurrent use.
type Signer interface {
	Sign(imageURL string) (string, error)
}

// New picks the signer variant for the configured proxy. With no key and
// no secret the returned signer is the identity. Partial configuration is
// rejected by config validation before this point.
func New(proxyURL, key, secret string) Signer {
	if key == "" && secret == "" {
		return passthrough{}
	}
	return &hmacSigner{proxyURL: proxyURL, key: key, secret: []byte(secret)}
}

type passthrough struct{}

func (passthrough) Sign(imageURL string) (string, error) {
	if err := checkAbsolute(imageURL); err != nil {
		return "", err
	}
	return imageURL, nil
}

// hmacSigner builds <proxy>?url=<enc>&key=<key>&signature=<hex>. The
// signature is an HMAC-SHA256 over the query prefix url=<enc>&key=<key>,
// which the proxy recomputes from the query it receives.
type hmacSigner struct {
	proxyURL string
	key      string
	secret   []byte
}

func (s *hmacSigner) Sign(imageURL string) (string, error) {
	if err := checkAbsolute(imageURL); err != nil {
		return "", err
	}
	query := fmt.Sprintf("url=%s&key=%s", url.QueryEscape(imageURL), url.QueryEscape(s.key))
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(query))
	return fmt.Sprintf("%s?%s&signature=%s", s.proxyURL, query, hex.EncodeToString(mac.Sum(nil))), nil
}

func checkAbsolute(imageURL string) error {
	u, err := url.Parse(imageURL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidImageURL, err)
	}
	if !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("%w: %s", ErrInvalidImageURL, imageURL)
	}
	return nil
}
