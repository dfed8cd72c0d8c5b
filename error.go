package lbstats

import "github.com/pkg/errors"

var ErrLocked = errors.New("another collector run holds the data dir lock")
var ErrEmptyStats = errors.New("stats source returned no data")
var ErrUnknownResetPolicy = errors.New("unknown counter reset policy")
