package swr

import (
	"fmt"
	"net/url"

	"github.com/plandesk/plandesk/internal/folders"
)

// Filter carries the request parameters of a channel request, such as the
// project a task list is scoped to.
type Filter map[string]string

// FilterFromQuery takes the first value of each query parameter.
func FilterFromQuery(values url.Values) Filter {
	filter := make(Filter, len(values))
	for k, v := range values {
		if len(v) > 0 {
			filter[k] = v[0]
		}
	}
	return filter
}

// Require returns the named parameter, path-escaped for use in an endpoint.
func (f Filter) Require(name string) (string, error) {
	v := f[name]
	if v == "" {
		return "", fmt.Errorf("missing %q parameter", name)
	}
	return url.PathEscape(v), nil
}

// Shape selects the cache accessor used for a resource.
type Shape int

const (
	ShapeAny Shape = iota
	ShapeEntity
	ShapeList
)

// Resource describes a cacheable API resource served on the channel.
type Resource struct {
	Name  string
	Shape Shape
	// Endpoint builds the resource path from the request filter.
	Endpoint func(Filter) (string, error)
	// Collection is the path entity ids are appended to for deletes; empty if
	// the resource cannot be deleted over the channel.
	Collection string
	// Decorate adds local fields to a reply value. It must not modify its
	// argument.
	Decorate func(any) any
}

func (r Resource) decorate(value any) any {
	if r.Decorate == nil {
		return value
	}
	return r.Decorate(value)
}

func static(path string) func(Filter) (string, error) {
	return func(Filter) (string, error) {
		return path, nil
	}
}

func byID(format, param string) func(Filter) (string, error) {
	return func(f Filter) (string, error) {
		id, err := f.Require(param)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf(format, id), nil
	}
}

// DefaultResources returns the resources of the project/task API. Projects
// and tasks are decorated with their local folders from ix.
func DefaultResources(ix *folders.Index) []Resource {
	return []Resource{
		{
			Name:       "projects",
			Shape:      ShapeList,
			Endpoint:   static("/projects"),
			Collection: "/projects",
			Decorate:   ix.Decorator(folders.KindProject),
		},
		{
			Name:       "project",
			Shape:      ShapeEntity,
			Endpoint:   byID("/projects/%s", "id"),
			Collection: "/projects",
			Decorate:   ix.Decorator(folders.KindProject),
		},
		{
			Name:       "tasks",
			Shape:      ShapeList,
			Endpoint:   byID("/projects/%s/tasks", "projectId"),
			Collection: "/tasks",
			Decorate:   ix.Decorator(folders.KindTask),
		},
		{
			Name:       "task",
			Shape:      ShapeEntity,
			Endpoint:   byID("/tasks/%s", "id"),
			Collection: "/tasks",
			Decorate:   ix.Decorator(folders.KindTask),
		},
		{
			Name:     "user",
			Shape:    ShapeEntity,
			Endpoint: static("/users/me"),
		},
	}
}
