package chatview

import (
	"context"
	"errors"

	tea "github.com/charmbracelet/bubbletea"
)

// Run drives the view until the user quits or ctx ends. Inbound channel
// messages are applied to the room for the lifetime of the view.
func Run(ctx context.Context, deps Deps, opts ...tea.ProgramOption) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	m := New(ctx, deps)
	defer m.Stop()
	unwatch := m.Watch()
	defer unwatch()

	if deps.Channel != nil {
		unsubscribe := deps.Channel.Subscribe(deps.Room.Handle)
		defer unsubscribe()
	}

	options := append([]tea.ProgramOption{
		tea.WithContext(ctx),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
		tea.WithReportFocus(),
	}, opts...)

	_, err := tea.NewProgram(m, options...).Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
