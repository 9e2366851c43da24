// Package models provides the ledger entities maintained by the analytics engine.
package models

// Kind names an entity type in the ledger
type Kind string

const (
	KindToken             Kind = "Token"
	KindPair              Kind = "Pair"
	KindBundle            Kind = "Bundle"
	KindFactory           Kind = "Factory"
	KindTransaction       Kind = "Transaction"
	KindMint              Kind = "Mint"
	KindBurn              Kind = "Burn"
	KindSwap              Kind = "Swap"
	KindUser              Kind = "User"
	KindLiquidityPosition Kind = "LiquidityPosition"
	KindLiquiditySnapshot Kind = "LiquidityPositionSnapshot"
	KindSyncStatus        Kind = "SyncStatus"
)

// BundleID is the fixed id of the Bundle singleton
const BundleID = "1"

// Entity is anything the ledger can store
type Entity interface {
	EntityKind() Kind
	EntityID() string
}

func (t *Token) EntityKind() Kind                     { return KindToken }
func (p *Pair) EntityKind() Kind                      { return KindPair }
func (b *Bundle) EntityKind() Kind                    { return KindBundle }
func (f *Factory) EntityKind() Kind                   { return KindFactory }
func (t *Transaction) EntityKind() Kind               { return KindTransaction }
func (m *Mint) EntityKind() Kind                      { return KindMint }
func (b *Burn) EntityKind() Kind                      { return KindBurn }
func (s *Swap) EntityKind() Kind                      { return KindSwap }
func (u *User) EntityKind() Kind                      { return KindUser }
func (p *LiquidityPosition) EntityKind() Kind         { return KindLiquidityPosition }
func (s *LiquidityPositionSnapshot) EntityKind() Kind { return KindLiquiditySnapshot }
func (s *SyncStatus) EntityKind() Kind                { return KindSyncStatus }

func (t *Token) EntityID() string                     { return t.ID }
func (p *Pair) EntityID() string                      { return p.ID }
func (b *Bundle) EntityID() string                    { return b.ID }
func (f *Factory) EntityID() string                   { return f.ID }
func (t *Transaction) EntityID() string               { return t.ID }
func (m *Mint) EntityID() string                      { return m.ID }
func (b *Burn) EntityID() string                      { return b.ID }
func (s *Swap) EntityID() string                      { return s.ID }
func (u *User) EntityID() string                      { return u.ID }
func (p *LiquidityPosition) EntityID() string         { return p.ID }
func (s *LiquidityPositionSnapshot) EntityID() string { return s.ID }
func (s *SyncStatus) EntityID() string                { return s.ID }
