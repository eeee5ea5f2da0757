package config

import (
	"os"
	"sync"
)

// DockerHostGatewayEnv overrides the alias used to reach the host from a
// container, e.g. 172.17.0.1 on Linux hosts without host.docker.internal.
const DockerHostGatewayEnv = "DOCKER_HOST_GATEWAY"

const defaultDockerGateway = "host.docker.internal"

var (
	inDockerOnce sync.Once
	inDocker     bool
)

// IsRunningInDocker reports whether /.dockerenv exists. The result is cached.
func IsRunningInDocker() bool {
	inDockerOnce.Do(func() {
		_, err := os.Stat("/.dockerenv")
		inDocker = err == nil
	})
	return inDocker
}

// ResolveHostForDocker rewrites loopback data source hosts to the Docker
// host gateway when the engine runs in a container, so a database on the
// developer's machine stays reachable. Other hosts are returned unchanged.
func ResolveHostForDocker(host string) string {
	return resolveHost(host, IsRunningInDocker(), os.Getenv(DockerHostGatewayEnv))
}

func resolveHost(host string, containerized bool, gateway string) string {
	if !containerized {
		return host
	}
	switch host {
	case "localhost", "127.0.0.1", "::1":
		if gateway != "" {
			return gateway
		}
		return defaultDockerGateway
	}
	return host
}
