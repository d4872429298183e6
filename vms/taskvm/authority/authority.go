// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package authority decides which accounts may submit results on chain.
package authority

import (
	"github.com/luxfi/crypto/secp256k1"
	"github.com/luxfi/ids"
	"github.com/luxfi/math/set"
)

var (
	_ Authorities = AuthoritiesFunc(nil)
	_ Authorities = (*StaticAuthorities)(nil)
)

// Authorities is a predicate over accounts. It must be deterministic for a
// fixed chain state.
type Authorities interface {
	IsAuthorized(account ids.ShortID) bool
}

type AuthoritiesFunc func(account ids.ShortID) bool

func (f AuthoritiesFunc) IsAuthorized(account ids.ShortID) bool {
	return f(account)
}

// StaticAuthorities authorizes a fixed set of accounts.
type StaticAuthorities struct {
	accounts set.Set[ids.ShortID]
}

func NewStaticAuthorities(accounts ...ids.ShortID) *StaticAuthorities {
	s := set.NewSet[ids.ShortID](len(accounts))
	for _, account := range accounts {
		s.Add(account)
	}
	return &StaticAuthorities{accounts: s}
}

func (s *StaticAuthorities) IsAuthorized(account ids.ShortID) bool {
	return s.accounts.Contains(account)
}

func (s *StaticAuthorities) Len() int {
	return s.accounts.Len()
}

// FindAuthorized returns the first key in [keys] whose address is authorized.
func FindAuthorized(keys []*secp256k1.PrivateKey, auth Authorities) (*secp256k1.PrivateKey, bool) {
	for _, key := range keys {
		if auth.IsAuthorized(key.Address()) {
			return key, true
		}
	}
	return nil, false
}
