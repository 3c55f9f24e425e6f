package supervisor

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"syscall"
	"time"
)

// ExecProcess supervises an external command. Stop sends SIGTERM and
// escalates to SIGKILL when the grace period runs out, so a hung worker
// can never wedge the restart loop.
type ExecProcess struct {
	Name string
	Args []string

	cmd    *exec.Cmd
	exited chan struct{}
}

func NewExecProcess(name string, args ...string) *ExecProcess {
	return &ExecProcess{Name: name, Args: args}
}

func (p *ExecProcess) Start(ctx context.Context) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	cmd := exec.Command(p.Name, p.Args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return err
	}
	p.cmd = cmd
	p.exited = make(chan struct{})
	return nil
}

func (p *ExecProcess) Wait() error {
	if p.cmd == nil {
		return errors.New("process not started")
	}
	err := p.cmd.Wait()
	close(p.exited)
	return err
}

func (p *ExecProcess) Stop(grace time.Duration) error {
	if p.cmd == nil || p.cmd.Process == nil {
		return nil
	}
	if err := p.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		return err
	}
	t := time.NewTimer(grace)
	defer t.Stop()
	select {
	case <-p.exited:
		return nil
	case <-t.C:
		return p.cmd.Process.Kill()
	}
}
