package stack

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/odooghost/odooghost/internal/core/labels"
	"github.com/odooghost/odooghost/internal/shell/docker"
)

// Event is a container lifecycle change of a managed container.
type Event struct {
	ID            string    `json:"id"`
	Action        string    `json:"action"`
	Image         string    `json:"image"`
	ContainerID   string    `json:"container_id"`
	ContainerName string    `json:"container_name"`
	StackName     string    `json:"stack_name"`
	ServiceName   string    `json:"service_name"`
	Time          time.Time `json:"time"`
}

var watchedActions = map[string]bool{
	"start": true,
	"die":   true,
	"kill":  true,
	"stop":  true,
}

// WatchEvents streams lifecycle events of managed containers, restricted to
// one stack when stackName is set. The event channel closes when ctx ends
// or the engine stream fails; the failure, if any, is on the error channel.
func WatchEvents(ctx context.Context, cli docker.Client, stackName string) (<-chan Event, <-chan error) {
	predicates := labels.ManagedSet()
	if stackName != "" {
		predicates = labels.ForStack(stackName)
	}
	raw, rawErr := cli.Events(ctx, map[string][]string{
		"type":  {"container"},
		"label": labels.AsFilterArgs(predicates),
	})

	out := make(chan Event)
	errCh := make(chan error, 1)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case err, ok := <-rawErr:
				if ok && err != nil && ctx.Err() == nil {
					errCh <- err
				}
				return
			case msg, ok := <-raw:
				if !ok {
					return
				}
				ev, keep := toEvent(msg)
				if !keep {
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, errCh
}

func toEvent(msg docker.Event) (Event, bool) {
	if msg.Type != "" && msg.Type != "container" {
		return Event{}, false
	}
	if !watchedActions[msg.Action] {
		return Event{}, false
	}
	attrs := msg.Attributes
	return Event{
		ID:            uuid.NewString(),
		Action:        msg.Action,
		Image:         attrs["image"],
		ContainerID:   msg.ActorID,
		ContainerName: attrs["name"],
		StackName:     attrs[labels.Stack],
		ServiceName:   attrs[labels.Service],
		Time:          msg.Time,
	}, true
}

// Events streams the lifecycle events of this stack's containers.
func (s *Stack) Events(ctx context.Context) (<-chan Event, <-chan error) {
	return WatchEvents(ctx, s.deps.Docker, s.Name())
}
