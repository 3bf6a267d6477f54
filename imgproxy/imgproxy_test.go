package imgproxy_test

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"testing"

	"github.com/comicfeed/comicfeed/imgproxy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPassthroughReturnsInputUnchanged(t *testing.T) {
	signer := imgproxy.New("https://proxy.example.com/img", "", "")

	urls := []string{
		"http://imgcomic.naver.net/webtoon/22896/1/a.jpg",
		"https://cdn.example.com/page.png?v=2",
	}

	for _, u := range urls {
		signed, err := signer.Sign(u)
		require.NoError(t, err)
		assert.Equal(t, u, signed)
	}
}

func TestSignRejectsNonAbsoluteURLs(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "relative path", input: "/webtoon/22896/1/a.jpg"},
		{name: "no scheme", input: "imgcomic.naver.net/a.jpg"},
		{name: "scheme only", input: "https://"},
		{name: "empty", input: ""},
		{name: "control character", input: "http://example.com/\x7f"},
	}

	signers := map[string]imgproxy.Signer{
		"passthrough": imgproxy.New("https://proxy.example.com/img", "", ""),
		"hmac":        imgproxy.New("https://proxy.example.com/img", "key", "secret"),
	}

	for variant, signer := range signers {
		for _, tt := range tests {
			t.Run(variant+" "+tt.name, func(t *testing.T) {
				_, err := signer.Sign(tt.input)
				assert.ErrorIs(t, err, imgproxy.ErrInvalidImageURL)
			})
		}
	}
}

func TestSignedURLShape(t *testing.T) {
	signer := imgproxy.New("https://proxy.example.com/img", "comicfeed", "s3cret")
	imageURL := "http://imgcomic.naver.net/webtoon/22896/1/a.jpg"

	signed, err := signer.Sign(imageURL)
	require.NoError(t, err)

	parsed, err := url.Parse(signed)
	require.NoError(t, err)
	assert.Equal(t, "proxy.example.com", parsed.Host)
	assert.Equal(t, "/img", parsed.Path)

	query := parsed.Query()
	assert.Equal(t, imageURL, query.Get("url"))
	assert.Equal(t, "comicfeed", query.Get("key"))

	mac := hmac.New(sha256.New, []byte("s3cret"))
	fmt.Fprintf(mac, "url=%s&key=%s", url.QueryEscape(imageURL), "comicfeed")
	assert.Equal(t, hex.EncodeToString(mac.Sum(nil)), query.Get("signature"))
}

func TestSignIsDeterministic(t *testing.T) {
	signer := imgproxy.New("https://proxy.example.com/img", "key", "secret")

	first, err := signer.Sign("https://cdn.example.com/a.jpg")
	require.NoError(t, err)
	second, err := signer.Sign("https://cdn.example.com/a.jpg")
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestSignatureDependsOnSecret(t *testing.T) {
	one := imgproxy.New("https://proxy.example.com/img", "key", "secret-one")
	two := imgproxy.New("https://proxy.example.com/img", "key", "secret-two")

	first, err := one.Sign("https://cdn.example.com/a.jpg")
	require.NoError(t, err)
	second, err := two.Sign("https://cdn.example.com/a.jpg")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}
