package service

import (
	"context"

	"github.com/petrijr/pathways/pkg/api"
)

// StaticDirectory is an api.Directory over fixed sets of user ids and
// group names, typically loaded from configuration.
type StaticDirectory struct {
	users  map[int64]struct{}
	groups map[string]struct{}
}

var _ api.Directory = (*StaticDirectory)(nil)

func NewStaticDirectory(userIDs []int64, groups []string) *StaticDirectory {
	d := &StaticDirectory{
		users:  make(map[int64]struct{}, len(userIDs)),
		groups: make(map[string]struct{}, len(groups)),
	}
	for _, id := range userIDs {
		d.users[id] = struct{}{}
	}
	for _, g := range groups {
		d.groups[g] = struct{}{}
	}
	return d
}

func (d *StaticDirectory) UserExists(ctx context.Context, id int64) (bool, error) {
	_, ok := d.users[id]
	return ok, nil
}

func (d *StaticDirectory) GroupExists(ctx context.Context, name string) (bool, error) {
	_, ok := d.groups[name]
	return ok, nil
}
