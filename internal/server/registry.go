// File: internal/server/registry.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog"
)

// Notification is the failure/success reply shape of the notification
// service, also used for every management response.
type Notification struct {
	Service string `json:"service"`
	Success bool   `json:"success"`
	Text    string `json:"text"`
}

// ServiceList answers a listServices management request.
type ServiceList struct {
	Service  string   `json:"service"`
	Services []string `json:"services"`
}

// Registry holds the closed set of known service factories and the map of
// currently running services. Only the reactor goroutine touches it.
type Registry struct {
	log              zerolog.Logger
	notificationName string
	websocketName    string

	factories map[string]HandlerFactory
	running   map[string]Handler
}

// NewRegistry returns an empty registry. notificationName is the service
// name stamped on every Notification; websocketName on service lists.
func NewRegistry(log zerolog.Logger, notificationName, websocketName string) *Registry {
	return &Registry{
		log:              log.With().Str("component", "registry").Logger(),
		notificationName: notificationName,
		websocketName:    websocketName,
		factories:        make(map[string]HandlerFactory),
		running:          make(map[string]Handler),
	}
}

// RegisterFactory adds a service to the closed set of startable services.
func (r *Registry) RegisterFactory(name string, f HandlerFactory) {
	r.factories[name] = f
}

// AddService starts a registered service.
func (r *Registry) AddService(name string) Notification {
	if _, ok := r.running[name]; ok {
		return r.notify(false, `The service "%s" is already running`, name)
	}
	factory, ok := r.factories[name]
	if !ok {
		return r.notify(false, `The service "%s" does not exist`, name)
	}
	h, err := factory()
	if err != nil {
		r.log.Error().Err(err).Str("service", name).Msg("service start failed")
		return r.notify(false, `The service "%s" could not be started`, name)
	}
	r.running[name] = h
	r.log.Info().Str("service", name).Msg("service started")
	return r.notify(true, `The service "%s" is now running`, name)
}

// RemoveService stops a running service.
func (r *Registry) RemoveService(name string) Notification {
	if _, ok := r.running[name]; !ok {
		return r.notify(false, `The service "%s" is not running`, name)
	}
	delete(r.running, name)
	r.log.Info().Str("service", name).Msg("service stopped")
	return r.notify(true, `The service "%s" is now stopped`, name)
}

// Services returns the sorted names of running services.
func (r *Registry) Services() []string {
	names := make([]string, 0, len(r.running))
	for name := range r.running {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// List answers a listServices request.
func (r *Registry) List() ServiceList {
	return ServiceList{Service: r.websocketName, Services: r.Services()}
}

// Dispatch routes one raw payload to every service the envelope names.
// Unknown or stopped services produce failure notifications for the caller.
func (r *Registry) Dispatch(conn Conn, names []string, raw []byte) []Notification {
	var failures []Notification
	for _, name := range names {
		h, ok := r.running[name]
		if !ok {
			failures = append(failures, r.notify(false, `The service "%s" is not running`, name))
			continue
		}
		h.Handle(conn, raw)
	}
	return failures
}

// Disconnect fans the connection death out to every running service.
func (r *Registry) Disconnect(conn Conn) {
	for _, h := range r.running {
		h.HandleDisconnect(conn)
	}
}

func (r *Registry) notify(success bool, format string, args ...any) Notification {
	return Notification{
		Service: r.notificationName,
		Success: success,
		Text:    fmt.Sprintf(format, args...),
	}
}
