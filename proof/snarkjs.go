package proof

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// SnarkJS drives the snarkjs command line against a precompiled circuit.
// Each call works in its own temporary directory under CircuitsDir so
// concurrent requests do not overwrite each other's files.
type SnarkJS struct {
	Bin         string
	CircuitsDir string
	WasmFile    string
	ZkeyFile    string
	VkeyFile    string
	Timeout     time.Duration
	Log         logrus.FieldLogger
}

func (s *SnarkJS) Prove(ctx context.Context, in Inputs) (*Proof, error) {
	dir, cleanup, err := s.workDir()
	if err != nil {
		return nil, err
	}
	defer cleanup()

	input, err := json.Marshal(in)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(filepath.Join(dir, "input.json"), input, 0o600); err != nil {
		return nil, fmt.Errorf("write input: %w", err)
	}

	if _, err := s.run(ctx, dir, "wtns", "calculate", s.path(s.WasmFile), "input.json", "witness.wtns"); err != nil {
		return nil, err
	}
	if _, err := s.run(ctx, dir, "groth16", "prove", s.path(s.ZkeyFile), "witness.wtns", "proof.json", "public.json"); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filepath.Join(dir, "proof.json"))
	if err != nil {
		return nil, fmt.Errorf("read proof: %w", err)
	}
	public, err := os.ReadFile(filepath.Join(dir, "public.json"))
	if err != nil {
		return nil, fmt.Errorf("read public signals: %w", err)
	}
	signals, err := NormalizeSignals(public)
	if err != nil {
		return nil, err
	}
	return &Proof{Data: json.RawMessage(bytes.TrimSpace(data)), PublicSignals: signals}, nil
}

func (s *SnarkJS) Verify(ctx context.Context, p *Proof) (bool, error) {
	if p == nil || len(p.Data) == 0 {
		return false, nil
	}

	dir, cleanup, err := s.workDir()
	if err != nil {
		return false, err
	}
	defer cleanup()

	public, err := json.Marshal(p.PublicSignals)
	if err != nil {
		return false, err
	}
	if err := os.WriteFile(filepath.Join(dir, "proof.json"), p.Data, 0o600); err != nil {
		return false, fmt.Errorf("write proof: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "public.json"), public, 0o600); err != nil {
		return false, fmt.Errorf("write public signals: %w", err)
	}

	out, err := s.run(ctx, dir, "groth16", "verify", s.path(s.VkeyFile), "public.json", "proof.json")
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return false, nil
		}
		return false, err
	}
	return strings.Contains(out, "OK"), nil
}

func (s *SnarkJS) workDir() (string, func(), error) {
	if err := os.MkdirAll(s.CircuitsDir, 0o755); err != nil {
		return "", nil, err
	}
	dir, err := os.MkdirTemp(s.CircuitsDir, "proof-")
	if err != nil {
		return "", nil, fmt.Errorf("create work dir: %w", err)
	}
	return dir, func() { os.RemoveAll(dir) }, nil
}

func (s *SnarkJS) path(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	abs, err := filepath.Abs(filepath.Join(s.CircuitsDir, name))
	if err != nil {
		return filepath.Join(s.CircuitsDir, name)
	}
	return abs
}

func (s *SnarkJS) run(ctx context.Context, dir string, args ...string) (string, error) {
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	bin := s.Bin
	if bin == "" {
		bin = "snarkjs"
	}
	if s.Log != nil {
		s.Log.Debugf("Running %s %s", bin, strings.Join(args, " "))
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Dir = dir
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("snarkjs %s %s: %w", args[0], args[1], ctx.Err())
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = strings.TrimSpace(stdout.String())
		}
		return stdout.String(), fmt.Errorf("snarkjs %s %s: %w: %s", args[0], args[1], err, msg)
	}
	return stdout.String(), nil
}
