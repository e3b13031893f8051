package sqlkit

import (
	"github.com/rzpsarthak13/sqlkit/internal/cast"
	"github.com/rzpsarthak13/sqlkit/internal/core"
	"github.com/rzpsarthak13/sqlkit/internal/entity"
	"github.com/rzpsarthak13/sqlkit/internal/query"
	"github.com/rzpsarthak13/sqlkit/internal/resource"
	"github.com/rzpsarthak13/sqlkit/internal/row"
)

type (
	Builder     = query.Builder
	Row         = row.Row
	Model       = entity.Model
	Entity      = entity.Entity
	Relation    = entity.Relation
	Accessor    = entity.Accessor
	Resource    = resource.Resource
	Projection  = resource.Projection
	CastHandler = cast.Handler
	ChangeEvent = core.ChangeEvent
)

var (
	Table         = query.Table
	Combine       = query.Combine
	Define        = entity.Define
	MustDefine    = entity.MustDefine
	HasOne        = entity.HasOne
	HasMany       = entity.HasMany
	BelongsToMany = entity.BelongsToMany
	NewResource   = resource.New
	Collection    = resource.Collection
	RegisterCast  = cast.Register
)

// Errors are matched with errors.Is.
var (
	ErrNoTable          = core.ErrNoTable
	ErrEmptyQuery       = core.ErrEmptyQuery
	ErrInvalidQuery     = core.ErrInvalidQuery
	ErrInvalidCommand   = core.ErrInvalidCommand
	ErrInvalidArguments = core.ErrInvalidArguments
	ErrModelNoTable     = core.ErrModelNoTable
	ErrInvalidObject    = core.ErrInvalidObject
	ErrNoRelation       = core.ErrNoRelation
)
