// Package deeplink builds and parses the invite and room-join links shared
// between users.
package deeplink

import (
	"errors"
	"net/url"
	"strings"
)

type Kind int

const (
	KindNone Kind = iota
	KindInvite
	KindJoin
)

func (k Kind) String() string {
	switch k {
	case KindInvite:
		return "invite"
	case KindJoin:
		return "join"
	}
	return "none"
}

// Link is a parsed deep link. ID is the inviter uid or the room chat id.
type Link struct {
	Kind Kind
	ID   string
}

var ErrInvalidLink = errors.New("invalid link")

// Parse recognises "/invite/<uid>" paths and "?join=<chatId>" queries. A URL
// with neither yields KindNone and no error.
func Parse(raw string) (Link, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return Link{}, ErrInvalidLink
	}

	if rest, ok := strings.CutPrefix(u.Path, "/invite/"); ok {
		uid := strings.Trim(rest, "/")
		if uid == "" || strings.Contains(uid, "/") {
			return Link{}, ErrInvalidLink
		}
		return Link{Kind: KindInvite, ID: uid}, nil
	}
	if id := strings.TrimSpace(u.Query().Get("join")); id != "" {
		return Link{Kind: KindJoin, ID: id}, nil
	}
	return Link{Kind: KindNone}, nil
}

// InviteLink opens a direct chat with uid for whoever follows it.
func InviteLink(baseURL, uid string) string {
	return strings.TrimRight(baseURL, "/") + "/invite/" + url.PathEscape(uid)
}

// JoinLink adds whoever follows it to the public room chatID.
func JoinLink(baseURL, chatID string) string {
	return strings.TrimRight(baseURL, "/") + "/chat?join=" + url.QueryEscape(chatID)
}

// String is the compact "kind:id" form used for local storage.
func (l Link) String() string {
	return l.Kind.String() + ":" + l.ID
}

// Decode reverses Link.String.
func Decode(s string) (Link, error) {
	kind, id, ok := strings.Cut(s, ":")
	if !ok || id == "" {
		return Link{}, ErrInvalidLink
	}
	switch kind {
	case KindInvite.String():
		return Link{Kind: KindInvite, ID: id}, nil
	case KindJoin.String():
		return Link{Kind: KindJoin, ID: id}, nil
	}
	return Link{}, ErrInvalidLink
}
