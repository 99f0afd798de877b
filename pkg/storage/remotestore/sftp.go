package remotestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"os"
	"path"
	"sort"
	"strconv"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

type sftpDialer struct {
	name    string
	addr    string
	sshConf *ssh.ClientConfig
}

func newSFTPDialer(cfg Config) (Dialer, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("sftp %s: host is required", cfg.Name)
	}
	hostKey := ssh.InsecureIgnoreHostKey() //nolint:gosec // partner hosts without a known_hosts file are accepted as before
	if cfg.KnownHostsFile != "" {
		cb, err := knownhosts.New(cfg.KnownHostsFile)
		if err != nil {
			return nil, fmt.Errorf("load known hosts: %w", err)
		}
		hostKey = cb
	}
	port := cfg.Port
	if port == 0 {
		port = 22
	}
	return &sftpDialer{
		name: cfg.Name,
		addr: net.JoinHostPort(cfg.Host, strconv.Itoa(port)),
		sshConf: &ssh.ClientConfig{
			User:            cfg.User,
			Auth:            []ssh.AuthMethod{ssh.Password(cfg.Password)},
			HostKeyCallback: hostKey,
			Timeout:         cfg.DialTimeout,
		},
	}, nil
}

func (d *sftpDialer) Name() string { return d.name }

func (d *sftpDialer) Dial(ctx context.Context) (Session, error) {
	var dialer net.Dialer
	if d.sshConf.Timeout > 0 {
		dialer.Timeout = d.sshConf.Timeout
	}
	conn, err := dialer.DialContext(ctx, "tcp", d.addr)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", d.addr, err)
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, d.addr, d.sshConf)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ssh handshake %s: %w", d.addr, err)
	}
	sshClient := ssh.NewClient(sshConn, chans, reqs)
	client, err := sftp.NewClient(sshClient)
	if err != nil {
		_ = sshClient.Close()
		return nil, fmt.Errorf("open sftp subsystem: %w", err)
	}
	cwd, err := client.Getwd()
	if err != nil {
		cwd = "/"
	}
	return &sftpSession{ssh: sshClient, client: client, cwd: cwd}, nil
}

type sftpSession struct {
	ssh    *ssh.Client
	client *sftp.Client
	cwd    string
}

func (s *sftpSession) ChangeDir(_ context.Context, dir string) error {
	if s.client == nil {
		return ErrClosed
	}
	target := resolve(s.cwd, dir)
	info, err := s.client.Stat(target)
	if err != nil {
		return mapSFTPError(err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", target)
	}
	s.cwd = target
	return nil
}

func (s *sftpSession) MakeDir(_ context.Context, dir string) error {
	if s.client == nil {
		return ErrClosed
	}
	return s.client.MkdirAll(resolve(s.cwd, dir))
}

func (s *sftpSession) Stat(_ context.Context, name string) (FileInfo, error) {
	if s.client == nil {
		return FileInfo{}, ErrClosed
	}
	info, err := s.client.Stat(resolve(s.cwd, name))
	if err != nil {
		return FileInfo{}, mapSFTPError(err)
	}
	return FileInfo{Name: info.Name(), Size: info.Size()}, nil
}

func (s *sftpSession) List(_ context.Context, dir, pattern string) ([]string, error) {
	if s.client == nil {
		return nil, ErrClosed
	}
	entries, err := s.client.ReadDir(resolve(s.cwd, dir))
	if err != nil {
		return nil, mapSFTPError(err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ok, err := path.Match(pattern, e.Name())
		if err != nil {
			return nil, err
		}
		if ok {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func (s *sftpSession) Open(_ context.Context, name string) (io.ReadCloser, error) {
	if s.client == nil {
		return nil, ErrClosed
	}
	f, err := s.client.Open(resolve(s.cwd, name))
	if err != nil {
		return nil, mapSFTPError(err)
	}
	return f, nil
}

func (s *sftpSession) Write(_ context.Context, remotePath string, r io.Reader) error {
	if s.client == nil {
		return ErrClosed
	}
	f, err := s.client.OpenFile(resolve(s.cwd, remotePath), os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
	if err != nil {
		return mapSFTPError(err)
	}
	if _, err := f.ReadFrom(r); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func (s *sftpSession) Close() error {
	if s.client == nil {
		return nil
	}
	err := s.client.Close()
	if s.ssh != nil {
		err = errors.Join(err, s.ssh.Close())
	}
	s.client = nil
	s.ssh = nil
	return err
}

func mapSFTPError(err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	var se *sftp.StatusError
	if errors.As(err, &se) && se.FxCode() == sftp.ErrSSHFxNoSuchFile {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return err
}
