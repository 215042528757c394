/*
 * Copyright (c) 2020 Siemens AG
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy of
 * this software and associated documentation files (the "Software"), to deal in
 * the Software without restriction, including without limitation the rights to
 * use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies of
 * the Software, and to permit persons to whom the Software is furnished to do so,
 * subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY, FITNESS
 * FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE AUTHORS OR
 * COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER
 * IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN
 * CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.
 *
 * Author(s): Jonas Plum
 */

// Package envelope unwraps PKCS#7 signed and enveloped messages.
package envelope

import (
	"bytes"
	"crypto"
	"crypto/x509"
	"encoding/pem"
	"io"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"go.mozilla.org/pkcs7"
)

// maxDepth limits how many envelopes can be nested into each other.
const maxDepth = 8

var (
	// ErrNoRecipient is returned when no configured recipient can decrypt an
	// enveloped message.
	ErrNoRecipient = errors.New("no recipient for enveloped data")
	// ErrNotEnvelope is returned for data that is not a PKCS#7 message.
	ErrNotEnvelope = errors.New("not a pkcs7 message")
)

// Recipient is a certificate and its private key.
type Recipient struct {
	Cert *x509.Certificate
	Key  crypto.PrivateKey
}

// Opener unwraps envelopes.
type Opener struct {
	recipients []Recipient
	verify     bool
}

// Option configures an Opener.
type Option func(*Opener)

// WithRecipient adds a recipient used to decrypt enveloped data.
func WithRecipient(r Recipient) Option {
	return func(o *Opener) {
		o.recipients = append(o.recipients, r)
	}
}

// WithVerify enables signature verification of signed data.
func WithVerify(verify bool) Option {
	return func(o *Opener) {
		o.verify = verify
	}
}

// New creates an Opener.
func New(opts ...Option) *Opener {
	o := &Opener{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Open reads a message from r and writes its innermost payload to dst.
// Signed data is unwrapped, enveloped data is decrypted with the first
// recipient that can.
func (o *Opener) Open(r io.Reader, dst io.Writer) (int64, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return 0, errors.Wrap(err, "could not read envelope")
	}
	if block, _ := pem.Decode(data); block != nil {
		data = block.Bytes
	}

	p7, err := pkcs7.Parse(data)
	if err != nil {
		return 0, errors.Wrap(ErrNotEnvelope, err.Error())
	}

	for depth := 0; p7 != nil; depth++ {
		if depth == maxDepth {
			return 0, errors.New("envelopes nested too deep")
		}
		data, err = o.unwrap(p7)
		if err != nil {
			return 0, err
		}

		// the payload is the first content that is not a message itself
		p7, err = pkcs7.Parse(data)
		if err != nil {
			p7 = nil
		}
	}

	n, err := io.Copy(dst, bytes.NewReader(data))
	return n, errors.Wrap(err, "could not write payload")
}

func (o *Opener) unwrap(p7 *pkcs7.PKCS7) ([]byte, error) {
	if p7.Content != nil || len(p7.Signers) > 0 {
		if o.verify {
			if err := p7.Verify(); err != nil {
				return nil, errors.Wrap(err, "signature verification failed")
			}
		}
		return p7.Content, nil
	}

	for _, r := range o.recipients {
		data, err := p7.Decrypt(r.Cert, r.Key)
		if err == nil {
			return data, nil
		}
		if errors.Is(err, pkcs7.ErrNotEncryptedContent) {
			return nil, errors.Wrap(err, "unsupported envelope")
		}
	}
	return nil, ErrNoRecipient
}

// LoadRecipient reads a PEM encoded certificate and private key.
func LoadRecipient(fs afero.Fs, certPath, keyPath string) (Recipient, error) {
	certPEM, err := afero.ReadFile(fs, certPath)
	if err != nil {
		return Recipient{}, err
	}
	keyPEM, err := afero.ReadFile(fs, keyPath)
	if err != nil {
		return Recipient{}, err
	}
	return ParseRecipient(certPEM, keyPEM)
}

// ParseRecipient parses a PEM encoded certificate and private key. The key
// may be PKCS#1 or PKCS#8 encoded.
func ParseRecipient(certPEM, keyPEM []byte) (Recipient, error) {
	block, _ := pem.Decode(certPEM)
	if block == nil {
		return Recipient{}, errors.New("no certificate found")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return Recipient{}, errors.Wrap(err, "could not parse certificate")
	}

	block, _ = pem.Decode(keyPEM)
	if block == nil {
		return Recipient{}, errors.New("no private key found")
	}
	var key crypto.PrivateKey
	key, err = x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		key, err = x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return Recipient{}, errors.Wrap(err, "could not parse private key")
		}
	}
	return Recipient{Cert: cert, Key: key}, nil
}
