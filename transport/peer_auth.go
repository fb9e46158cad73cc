// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"time"

	"golang.org/x/crypto/hkdf"
)

// authNonceSize is the size of the random challenge nonce in bytes.
const authNonceSize = 32

// authSignatureSize is the size of a challenge response (HMAC-SHA256).
const authSignatureSize = sha256.Size

// authTimeout bounds the whole handshake. A peer that does not answer
// in time has its link torn down before it opens.
const authTimeout = 10 * time.Second

// ErrAuthFailed is wrapped by every handshake failure caused by the
// remote peer's response (as opposed to I/O errors).
var ErrAuthFailed = errors.New("peer authentication failed")

// PeerAuthenticator proves and checks membership of a game. When one
// is configured on a transport, every link completes a mutual
// challenge-response before EventOpened is emitted for it.
type PeerAuthenticator interface {
	// Sign returns an authSignatureSize response to message.
	Sign(message []byte) []byte

	// VerifyPeer checks that signature is peerID's response to
	// message.
	VerifyPeer(peerID string, message, signature []byte) error
}

// PasswordAuthenticator authenticates peers that share a game
// password. The password is stretched into an HMAC key with HKDF so
// that the raw password never keys a MAC directly.
type PasswordAuthenticator struct {
	key []byte
}

// passwordKeyInfo is the HKDF info string binding derived keys to
// this use.
const passwordKeyInfo = "tabletop peer-auth v1"

// NewPasswordAuthenticator derives the authentication key from
// password.
func NewPasswordAuthenticator(password string) (*PasswordAuthenticator, error) {
	if password == "" {
		return nil, errors.New("game password must not be empty")
	}
	reader := hkdf.New(sha256.New, []byte(password), nil, []byte(passwordKeyInfo))
	key := make([]byte, sha256.Size)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("deriving peer-auth key: %w", err)
	}
	return &PasswordAuthenticator{key: key}, nil
}

func (a *PasswordAuthenticator) Sign(message []byte) []byte {
	mac := hmac.New(sha256.New, a.key)
	mac.Write(message)
	return mac.Sum(nil)
}

func (a *PasswordAuthenticator) VerifyPeer(peerID string, message, signature []byte) error {
	if !hmac.Equal(a.Sign(message), signature) {
		return fmt.Errorf("%w: %s does not know the game password", ErrAuthFailed, peerID)
	}
	return nil
}

// challenge builds the signed message: the challenger's nonce
// followed by the responder's and the challenger's ids. Binding both
// ids in a fixed order stops a response from being reflected back at
// its author or replayed toward a third peer.
func challenge(nonce []byte, responder, challenger string) []byte {
	message := make([]byte, 0, len(nonce)+len(responder)+len(challenger)+2)
	message = append(message, nonce...)
	message = append(message, responder...)
	message = append(message, 0)
	message = append(message, challenger...)
	message = append(message, 0)
	return message
}

// runPeerAuth executes the mutual authentication protocol over
// channel. Both peers run it at the same time:
//
//  1. Send a 32-byte random nonce
//  2. Read the peer's nonce
//  3. Send Sign(peerNonce || localID || peerID)
//  4. Read the peer's response
//  5. Verify it against (ownNonce || peerID || localID)
//
// channel may be a byte stream or a message-oriented channel whose
// messages are exactly the sizes written; both work because every
// read is an io.ReadFull of a fixed size.
//
// Writes run on a background goroutine so that synchronous channels
// such as net.Pipe, where Write blocks until the peer reads, do not
// deadlock with both sides writing first.
func runPeerAuth(channel io.ReadWriter, authenticator PeerAuthenticator, localID, peerID string) error {
	if peerID == localID {
		return fmt.Errorf("%w: peer claims our own id %q", ErrAuthFailed, peerID)
	}

	nonce := make([]byte, authNonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("generating auth nonce: %w", err)
	}

	writeErrors := make(chan error, 1)
	responseToSend := make(chan []byte, 1)
	go func() {
		if _, err := channel.Write(nonce); err != nil {
			writeErrors <- fmt.Errorf("sending auth nonce: %w", err)
			return
		}
		response, ok := <-responseToSend
		if !ok {
			writeErrors <- nil
			return
		}
		if _, err := channel.Write(response); err != nil {
			writeErrors <- fmt.Errorf("sending auth response: %w", err)
			return
		}
		writeErrors <- nil
	}()

	peerNonce := make([]byte, authNonceSize)
	if _, err := io.ReadFull(channel, peerNonce); err != nil {
		close(responseToSend)
		return fmt.Errorf("reading peer nonce: %w", err)
	}
	responseToSend <- authenticator.Sign(challenge(peerNonce, localID, peerID))

	peerResponse := make([]byte, authSignatureSize)
	if _, err := io.ReadFull(channel, peerResponse); err != nil {
		return fmt.Errorf("reading peer response: %w", err)
	}
	if err := <-writeErrors; err != nil {
		return err
	}

	if err := authenticator.VerifyPeer(peerID, challenge(nonce, peerID, localID), peerResponse); err != nil {
		return err
	}
	return nil
}

// authenticateLink runs runPeerAuth with authTimeout, closing conn if
// the deadline passes so that blocked reads return.
func authenticateLink(conn messageConn, channel io.ReadWriter, authenticator PeerAuthenticator, localID, peerID string) error {
	timer := time.AfterFunc(authTimeout, func() { conn.Close() })
	defer timer.Stop()
	return runPeerAuth(channel, authenticator, localID, peerID)
}
