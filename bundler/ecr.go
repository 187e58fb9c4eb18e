package bundler

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ecr"
	dockertypes "github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/registry"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/jsonmessage"
	"github.com/moby/term"

	"github.com/skiffworks/skiff/telemetry"
	"github.com/skiffworks/skiff/types"
)

func init() {
	Register("ecr", func(ctx context.Context, cfg Config) (Bundler, error) {
		return NewECRBundler(ctx, cfg)
	})
}

// DockerAPI is the slice of the Docker Engine API the bundler drives.
type DockerAPI interface {
	ImageBuild(ctx context.Context, buildContext io.Reader, options dockertypes.ImageBuildOptions) (dockertypes.ImageBuildResponse, error)
	ImagePush(ctx context.Context, ref string, options image.PushOptions) (io.ReadCloser, error)
}

// ECRAPI is the slice of the ECR API the bundler drives.
type ECRAPI interface {
	GetAuthorizationToken(ctx context.Context, params *ecr.GetAuthorizationTokenInput, optFns ...func(*ecr.Options)) (*ecr.GetAuthorizationTokenOutput, error)
}

// ECRBundler builds the workspace into a container image and pushes it
// to an ECR repository, tagged with the bundle name.
type ECRBundler struct {
	docker     DockerAPI
	ecr        ECRAPI
	repo       string
	dockerfile string
	excludes   []string
	out        io.Writer
	logger     *telemetry.Logger
}

// NewECRBundler connects to the local Docker daemon and the configured
// AWS account.
func NewECRBundler(ctx context.Context, cfg Config) (*ECRBundler, error) {
	if cfg.DockerRepo == "" {
		return nil, fmt.Errorf("bundle.docker_repo is required for the ecr bundler")
	}

	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create Docker client: %w", err)
	}

	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.Profile != "" {
		loadOpts = append(loadOpts, config.WithSharedConfigProfile(cfg.Profile))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	dockerfile := cfg.Dockerfile
	if dockerfile == "" {
		dockerfile = "Dockerfile"
	}

	return &ECRBundler{
		docker:     cli,
		ecr:        ecr.NewFromConfig(awsCfg),
		repo:       cfg.DockerRepo,
		dockerfile: dockerfile,
		excludes:   effectiveExcludes(cfg.Excludes),
		out:        os.Stderr,
		logger:     telemetry.NewLogger("bundler"),
	}, nil
}

// Type returns the registry key
func (b *ECRBundler) Type() string {
	return "ecr"
}

// Bundle builds <repo>:<name> from the workspace and pushes it.
func (b *ECRBundler) Bundle(ctx context.Context, name, root string) (string, error) {
	if err := types.ValidateName(name); err != nil {
		return "", err
	}
	ref := fmt.Sprintf("%s:%s", b.repo, name)

	buildCtx, size, err := packWorkspace(root, b.excludes, false)
	if err != nil {
		return "", fmt.Errorf("failed to pack build context: %w", err)
	}
	defer func() {
		_ = buildCtx.Close()
		_ = os.Remove(buildCtx.Name())
	}()

	b.logger.WithContext(ctx).Info().
		Str("image", ref).
		Str("dockerfile", b.dockerfile).
		Int64("context_bytes", size).
		Msg("building image")

	resp, err := b.docker.ImageBuild(ctx, buildCtx, dockertypes.ImageBuildOptions{
		Tags:       []string{ref},
		Dockerfile: b.dockerfile,
		Remove:     true,
	})
	if err != nil {
		return "", fmt.Errorf("failed to build %s: %w", ref, err)
	}
	if err := b.relay(resp.Body); err != nil {
		return "", fmt.Errorf("build of %s failed: %w", ref, err)
	}

	auth, err := b.registryAuth(ctx)
	if err != nil {
		return "", err
	}

	b.logger.WithContext(ctx).Info().Str("image", ref).Msg("pushing image")
	pushOut, err := b.docker.ImagePush(ctx, ref, image.PushOptions{RegistryAuth: auth})
	if err != nil {
		return "", fmt.Errorf("failed to push %s: %w", ref, err)
	}
	if err := b.relay(pushOut); err != nil {
		return "", fmt.Errorf("push of %s failed: %w", ref, err)
	}

	return ref, nil
}

// registryAuth trades ECR credentials for the auth header the daemon
// expects. The token decodes to "AWS:<password>".
func (b *ECRBundler) registryAuth(ctx context.Context) (string, error) {
	out, err := b.ecr.GetAuthorizationToken(ctx, &ecr.GetAuthorizationTokenInput{})
	if err != nil {
		return "", fmt.Errorf("failed to get ECR authorization token: %w", err)
	}
	if len(out.AuthorizationData) == 0 {
		return "", fmt.Errorf("ECR returned no authorization data")
	}

	raw, err := base64.StdEncoding.DecodeString(aws.ToString(out.AuthorizationData[0].AuthorizationToken))
	if err != nil {
		return "", fmt.Errorf("failed to decode ECR authorization token: %w", err)
	}
	user, pass, ok := strings.Cut(string(raw), ":")
	if !ok {
		return "", fmt.Errorf("malformed ECR authorization token")
	}

	encoded, err := registry.EncodeAuthConfig(registry.AuthConfig{
		Username:      user,
		Password:      pass,
		ServerAddress: registryFromRepo(b.repo),
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode registry auth: %w", err)
	}
	return encoded, nil
}

// relay prints the daemon's progress stream and surfaces the error a
// failed step embeds in it.
func (b *ECRBundler) relay(r io.ReadCloser) error {
	defer func() { _ = r.Close() }()
	out := b.out
	fd, isTerm := uintptr(0), false
	if f, ok := out.(*os.File); ok {
		fd = f.Fd()
		isTerm = term.IsTerminal(fd)
	}
	return jsonmessage.DisplayJSONMessagesStream(r, out, fd, isTerm, nil)
}
