package engine

import "errors"

// Command rejections. None of them leave partial state behind.
var (
	ErrGameOver           = errors.New("game is over")
	ErrUnknownStation     = errors.New("unknown station")
	ErrUnknownLine        = errors.New("unknown line")
	ErrUnknownTrain       = errors.New("unknown train")
	ErrStationOnLine      = errors.New("station already on line")
	ErrNoBridge           = errors.New("no bridge available to cross water")
	ErrNoFreeLine         = errors.New("no free line available")
	ErrLineTooShort       = errors.New("line needs at least 2 stations")
	ErrNoTrains           = errors.New("no trains available")
	ErrNoCarriages        = errors.New("no carriages available")
	ErrNoInterchanges     = errors.New("no interchanges available")
	ErrAlreadyInterchange = errors.New("station is already an interchange")
	ErrInvalidSpeed       = errors.New("game speed must be 0, 1 or 2")
	ErrNoUpgradePending   = errors.New("no upgrade offer pending")
	ErrUpgradeNotOffered  = errors.New("upgrade was not offered")
	ErrUpgradePending     = errors.New("an upgrade must be chosen first")
	ErrAlreadyDrawing     = errors.New("already drawing a line")
	ErrNotDrawing         = errors.New("not drawing a line")
	ErrInWater            = errors.New("position is in water")
	ErrStationLimit       = errors.New("station limit reached")
	ErrCutIndex           = errors.New("cut index out of range")
	ErrUnknownVariant     = errors.New("unknown variant")
)
