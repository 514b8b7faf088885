package engine

import (
	"slices"

	"github.com/samber/lo"
)

// availableUpgrades lists the kinds that can be offered right now
func (e *GameEngine) availableUpgrades() []UpgradeKind {
	return lo.Filter(AllUpgrades, func(k UpgradeKind, _ int) bool {
		return k != UpgradeLine || len(e.state.Lines) < e.rules.MaxLines
	})
}

// offerUpgrades draws distinct upgrade kinds and pauses until one is chosen
func (e *GameEngine) offerUpgrades() bool {
	pool := e.availableUpgrades()
	n := min(e.rules.UpgradeOffers, len(pool))
	if n == 0 {
		return false
	}

	offer := make([]UpgradeKind, 0, n)
	for _, i := range e.rng.Perm(len(pool))[:n] {
		offer = append(offer, pool[i])
	}
	e.state.PendingUpgrades = offer
	e.state.Paused = true
	e.state.Interaction = Interaction{Mode: InteractionIdle}
	return true
}

// ChooseUpgrade resolves the pending offer and resumes the game
func (e *GameEngine) ChooseUpgrade(kind UpgradeKind) error {
	if e.state.GameOver {
		return ErrGameOver
	}
	if len(e.state.PendingUpgrades) == 0 {
		return ErrNoUpgradePending
	}
	if !slices.Contains(e.state.PendingUpgrades, kind) {
		return ErrUpgradeNotOffered
	}

	res := &e.state.Resources
	switch kind {
	case UpgradeLine:
		if len(e.state.Lines) < e.rules.MaxLines {
			e.addLine()
		}
	case UpgradeTrain:
		res.Trains++
	case UpgradeCarriage:
		res.Carriages++
	case UpgradeBridge:
		res.Bridges++
	case UpgradeInterchange:
		res.Interchanges++
	}

	e.state.PendingUpgrades = nil
	e.state.Paused = false
	log.WithField("upgrade", kind).Debug("upgrade chosen")
	return nil
}
