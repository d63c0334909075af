// Command nmpack builds .nmpack archives from a project file and inspects
// existing ones (§4.8/§4.9 "Pack builder").
package main

import (
	"crypto/rsa"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/novelmind/novelmind/internal/nmconfig"
	"github.com/novelmind/novelmind/internal/nmpack"
	"github.com/novelmind/novelmind/internal/nmsecure"
	"github.com/novelmind/novelmind/internal/nmvfs"
)

var (
	version   = "{v}"
	buildDate = "{d}"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "nmpack",
		Short: "NovelMind pack builder and inspector",
	}
	root.AddCommand(newBuildCmd())
	root.AddCommand(newInspectCmd())
	root.AddCommand(newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "print version and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "nmpack %s %s\n", version, buildDate)
			return nil
		},
	}
}

func newBuildCmd() *cobra.Command {
	var projectPath, outOverride string
	cmd := &cobra.Command{
		Use:   "build <novelmind.project.yaml>",
		Short: "build a .nmpack archive from a project file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				projectPath = args[0]
			}
			if projectPath == "" {
				projectPath = "novelmind.project.yaml"
			}
			pf, err := nmconfig.LoadProjectFile(projectPath)
			if err != nil {
				return err
			}

			projectDir := filepath.Dir(projectPath)
			opts := nmpack.Options{
				OutputPath:         pf.OutputPack,
				Compression:        nmpack.ParseCompressionLevel(pf.CompressionLevel),
				Encrypt:            pf.Encrypt,
				Sign:               pf.Sign,
				DeterministicBuild: pf.DeterministicBuild,
				FixedTimestamp:     pf.FixedTimestamp,
				FixedRandomSeed:    pf.FixedRandomSeed,
				Logger:             zap.NewExample(),
				Manifest: nmpack.BuildConfig{
					Platform:  nmpack.ParseBuildPlatform(pf.Platform),
					BuildType: nmpack.ParseBuildType(pf.BuildType),
					CodeSigning: nmpack.CodeSigningConfig{
						SignExecutable: pf.SignExecutable,
						Certificate:    pf.SigningCertificate,
						Password:       pf.SigningPassword,
						Entitlements:   pf.SigningEntitlements,
						TeamID:         pf.SigningTeamID,
						TimestampURL:   pf.SigningTimestampURL,
					},
				},
			}
			if outOverride != "" {
				opts.OutputPath = outOverride
			}
			for _, d := range pf.ScriptDirs {
				opts.ScriptDirs = append(opts.ScriptDirs, filepath.Join(projectDir, d))
			}
			for _, d := range pf.AssetDirs {
				opts.AssetDirs = append(opts.AssetDirs, filepath.Join(projectDir, d))
			}

			if opts.Encrypt {
				key, err := loadAESKeyFromEnv()
				if err != nil {
					return err
				}
				opts.AESKey = nmsecure.New(key, zap.NewNop())
				defer opts.AESKey.Drop()
			}
			if opts.Sign {
				keyPath := os.Getenv("NOVELMIND_SIGNING_KEY_FILE")
				if keyPath == "" {
					return fmt.Errorf("nmpack: signing enabled but NOVELMIND_SIGNING_KEY_FILE is not set")
				}
				pemBytes, err := os.ReadFile(keyPath)
				if err != nil {
					return err
				}
				signKey, err := nmpack.LoadRSAPrivateKeyPEM(pemBytes)
				if err != nil {
					return err
				}
				opts.SigningKey = signKey
			}

			b := nmpack.NewBuilder(opts)
			progress := make(chan nmpack.BuildProgress, 64)
			done := make(chan struct{})
			go func() {
				for p := range progress {
					fmt.Fprintf(cmd.OutOrStdout(), "[%s] %d/%d %s\n", p.Step, p.Completed, p.Total, p.Message)
				}
				close(done)
			}()
			result, err := b.Build(progress)
			close(progress)
			<-done
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d resources) [%s/%s]\n",
				result.OutputPath, result.ResourceCount, result.Manifest.Platform, result.Manifest.BuildType)
			return nil
		},
	}
	cmd.Flags().StringVarP(&outOverride, "out", "o", "", "override the project file's outputPack path")
	return cmd
}

func loadAESKeyFromEnv() ([]byte, error) {
	eo, err := nmconfig.LoadEnvOverrides()
	if err != nil {
		return nil, err
	}
	switch {
	case eo.PackAESKeyHex != "":
		key, err := hex.DecodeString(eo.PackAESKeyHex)
		if err != nil {
			return nil, fmt.Errorf("nmpack: decoding NOVELMIND_PACK_AES_KEY_HEX: %w", err)
		}
		return key, nil
	case eo.PackAESKeyFile != "":
		return os.ReadFile(eo.PackAESKeyFile)
	default:
		return nil, fmt.Errorf("nmpack: encryption enabled but neither NOVELMIND_PACK_AES_KEY_HEX nor NOVELMIND_PACK_AES_KEY_FILE is set")
	}
}

func newInspectCmd() *cobra.Command {
	var pubKeyPath string
	cmd := &cobra.Command{
		Use:   "inspect <file.nmpack>",
		Short: "list the resources in a .nmpack archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var pub *rsa.PublicKey
			if pubKeyPath != "" {
				pemBytes, err := os.ReadFile(pubKeyPath)
				if err != nil {
					return err
				}
				pub, err = nmvfs.ParsePublicKey(pemBytes)
				if err != nil {
					return err
				}
			}

			v, err := nmvfs.New(nmvfs.Options{PublicKey: pub})
			if err != nil {
				return err
			}
			defer v.Close()
			if err := v.LoadPack(args[0], nmvfs.TypeBase, 0); err != nil {
				return err
			}

			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			header, err := nmpack.DecodeHeader(data)
			if err != nil {
				return err
			}
			entries, err := nmpack.DecodeIndex(data[header.IndexOffset:], header.ResourceCount)
			if err != nil {
				return err
			}
			for _, e := range entries {
				fmt.Fprintf(cmd.OutOrStdout(), "%-40s %-8s %10d -> %10d bytes  flags=%03b\n",
					e.Path, e.Kind, e.CompressedSize, e.OriginalSize, e.Flags)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&pubKeyPath, "public-key", "", "RSA public key PEM to verify the pack's signature")
	return cmd
}
