package oidcx

import (
	"context"
	"time"

	"golang.org/x/oauth2"
)

// Session is the signed-in state the client keeps between calls: the last
// token response plus the ID token, which oauth2.Token does not serialise.
type Session struct {
	AccessToken  string    `json:"access_token"`
	TokenType    string    `json:"token_type,omitempty"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	IDToken      string    `json:"id_token"`
	Expiry       time.Time `json:"expiry,omitzero"`
}

// SessionStore persists a Session across process restarts. LoadSession
// returns (nil, nil) when nothing is stored.
type SessionStore interface {
	LoadSession(ctx context.Context) (*Session, error)
	SaveSession(ctx context.Context, s *Session) error
	ClearSession(ctx context.Context) error
}

func (s *Session) oauthToken() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  s.AccessToken,
		TokenType:    s.TokenType,
		RefreshToken: s.RefreshToken,
		Expiry:       s.Expiry,
	}
}

// sessionFrom builds a Session from a token response. Refresh responses may
// omit id_token, in which case prevIDToken is kept.
func sessionFrom(tok *oauth2.Token, prevIDToken string) *Session {
	idToken, _ := tok.Extra("id_token").(string)
	if idToken == "" {
		idToken = prevIDToken
	}
	return &Session{
		AccessToken:  tok.AccessToken,
		TokenType:    tok.TokenType,
		RefreshToken: tok.RefreshToken,
		IDToken:      idToken,
		Expiry:       tok.Expiry,
	}
}
