package musiclink

import (
	"context"
	"errors"
	"net/url"
)

var (
	// ErrIncompleteCipher is returned when a signatureCipher lacks its url or s parameter.
	ErrIncompleteCipher = errors.New("signature cipher missing url or signature")
)

// SignatureDecoder transforms an enciphered YouTube stream signature.
//
// A faithful decoder has to execute the transform functions shipped in the player JS.
// That is not implemented here; see IdentityDecoder.
type SignatureDecoder interface {
	// Decode returns the usable signature for s, given the player JS path.
	Decode(ctx context.Context, s, playerJSURL string) (string, error)

	// Faithful reports whether the decoder actually applies the player transform.
	Faithful() bool
}

// IdentityDecoder returns the raw signature unchanged.
// Streams it produces are frequently rejected by YouTube; this is a known limitation.
type IdentityDecoder struct{}

// Decode returns s unchanged.
func (IdentityDecoder) Decode(_ context.Context, s, _ string) (string, error) {
	return s, nil
}

// Faithful always reports false.
func (IdentityDecoder) Faithful() bool {
	return false
}

// decipherStreamURL builds a stream URL from a signatureCipher query string.
func decipherStreamURL(ctx context.Context, cipher, playerJSURL string, decoder SignatureDecoder) (string, error) {
	params, err := url.ParseQuery(cipher)
	if err != nil {
		return "", err
	}

	base := params.Get("url")
	s := params.Get("s")
	if base == "" || s == "" {
		return "", ErrIncompleteCipher
	}
	sp := params.Get("sp")
	if sp == "" {
		sp = "signature"
	}

	signature, err := decoder.Decode(ctx, s, playerJSURL)
	if err != nil {
		return "", err
	}
	return base + "&" + sp + "=" + url.QueryEscape(signature), nil
}
