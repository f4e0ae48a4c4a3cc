package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"tinyrsa/client"
)

var (
	remoteServer string
	remoteBits   int
	remoteKeyID  int64
	remoteData   string
)

var remoteCmd = &cobra.Command{
	Use:   "remote",
	Short: "Use a running tinyrsa server instead of the local database",
}

var remoteKeygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Ask the server for a new key",
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := newRemoteClient().GenerateKey(cmd.Context(), remoteBits)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "id:", key.ID)
		fmt.Fprintln(out, "fingerprint:", key.Fingerprint)
		fmt.Fprintln(out, "e =", key.E)
		fmt.Fprintln(out, "n =", key.N)
		return nil
	},
}

var remoteEncryptCmd = &cobra.Command{
	Use:   "encrypt",
	Short: "Encrypt text with a key held by the server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cipher, err := newRemoteClient().Encrypt(cmd.Context(), remoteKeyID, remoteData)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), cipher)
		return nil
	},
}

var remoteDecryptCmd = &cobra.Command{
	Use:   "decrypt",
	Short: "Decrypt \\xHH ciphertext with a key held by the server",
	RunE: func(cmd *cobra.Command, args []string) error {
		plain, err := newRemoteClient().Decrypt(cmd.Context(), remoteKeyID, remoteData)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), plain)
		return nil
	},
}

func init() {
	remoteCmd.PersistentFlags().StringVar(&remoteServer, "server", "http://localhost:8080", "server base URL")

	remoteKeygenCmd.Flags().IntVar(&remoteBits, "bits", 512, "bit length of each prime")

	remoteEncryptCmd.Flags().Int64Var(&remoteKeyID, "key", 0, "id of the key on the server")
	remoteEncryptCmd.Flags().StringVar(&remoteData, "text", "", "plaintext")
	remoteEncryptCmd.MarkFlagRequired("key")

	remoteDecryptCmd.Flags().Int64Var(&remoteKeyID, "key", 0, "id of the key on the server")
	remoteDecryptCmd.Flags().StringVar(&remoteData, "cipher", "", `ciphertext as \xHH bytes`)
	remoteDecryptCmd.MarkFlagRequired("key")

	remoteCmd.AddCommand(remoteKeygenCmd, remoteEncryptCmd, remoteDecryptCmd)
	rootCmd.AddCommand(remoteCmd)
}

func newRemoteClient() *client.Client {
	return client.New(remoteServer, &http.Client{
		Timeout: time.Duration(cfg.GenerateTimeout) + 15*time.Second,
	})
}
