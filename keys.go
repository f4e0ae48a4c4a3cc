package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"tinyrsa/store"
)

var (
	keygenBits int

	importP, importQ, importE string

	cryptKeyID  int64
	cryptText   string
	cryptCipher string

	showFull  bool
	deleteYes bool
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate and store a new key",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.CheckBitLength(keygenBits); err != nil {
			return err
		}

		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		ctx := cmd.Context()
		if timeout := time.Duration(cfg.GenerateTimeout); timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		start := time.Now()
		k, err := cfg.Generator().GenerateContext(ctx, keygenBits)
		if err != nil {
			return err
		}
		log.WithFields(logrus.Fields{"bit_length": keygenBits, "duration": time.Since(start)}).Debug("key generated")

		id, err := st.AddKey(ctx, k)
		if err != nil {
			return err
		}
		rec, err := st.GetKey(ctx, id)
		if err != nil {
			return err
		}
		printRecord(cmd.OutOrStdout(), rec, true)
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Store a key built from existing p, q and e",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := parseInt("p", importP)
		if err != nil {
			return err
		}
		q, err := parseInt("q", importQ)
		if err != nil {
			return err
		}
		e, err := parseInt("e", importE)
		if err != nil {
			return err
		}

		k, err := cfg.Generator().Reconstruct(p, q, e)
		if err != nil {
			return err
		}

		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		id, err := st.AddKey(cmd.Context(), k)
		if err != nil {
			return err
		}
		rec, err := st.GetKey(cmd.Context(), id)
		if err != nil {
			return err
		}
		printRecord(cmd.OutOrStdout(), rec, true)
		return nil
	},
}

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Inspect stored keys",
}

var keysListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every stored key",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		records, err := st.ListKeys(cmd.Context())
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(records) == 0 {
			fmt.Fprintln(out, "no keys")
			return nil
		}
		for _, rec := range records {
			fmt.Fprintf(out, "%d\t%d bits\t%s\t%s\n", rec.ID, rec.BitLength, rec.Fingerprint(), rec.CreatedAt.Format(time.RFC3339))
		}
		fmt.Fprintln(out, "total:", len(records))
		return nil
	},
}

var keysShowCmd = &cobra.Command{
	Use:   "show ID",
	Short: "Show one stored key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}

		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		rec, err := st.GetKey(cmd.Context(), id)
		if err != nil {
			return err
		}
		printRecord(cmd.OutOrStdout(), rec, showFull)
		return nil
	},
}

var keysDeleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Delete one stored key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}

		if !deleteYes && !confirm(cmd.InOrStdin(), cmd.OutOrStdout(), fmt.Sprintf("delete key %d? (yes/no): ", id)) {
			fmt.Fprintln(cmd.OutOrStdout(), "cancelled")
			return nil
		}

		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.DeleteKey(cmd.Context(), id); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "key", id, "deleted")
		return nil
	},
}

var keysStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize the key database",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		stats, err := st.Stats(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "keys:", stats.Keys)
		fmt.Fprintln(out, "smallest bit length:", stats.MinBitLength)
		fmt.Fprintln(out, "largest bit length:", stats.MaxBitLength)
		return nil
	},
}

var encryptCmd = &cobra.Command{
	Use:   "encrypt",
	Short: "Encrypt text with a stored key",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		rec, err := st.GetKey(cmd.Context(), cryptKeyID)
		if err != nil {
			return err
		}
		k, err := rec.Key()
		if err != nil {
			return err
		}

		cipher, err := k.EncryptHex(cryptText)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), cipher)
		return nil
	},
}

var decryptCmd = &cobra.Command{
	Use:   "decrypt",
	Short: "Decrypt \\xHH ciphertext with a stored key",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		rec, err := st.GetKey(cmd.Context(), cryptKeyID)
		if err != nil {
			return err
		}
		k, err := rec.Key()
		if err != nil {
			return err
		}

		plain, err := k.DecryptHex(cryptCipher)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), plain)
		return nil
	},
}

func init() {
	keygenCmd.Flags().IntVar(&keygenBits, "bits", 512, "bit length of each prime")

	importCmd.Flags().StringVar(&importP, "p", "", "first prime (decimal)")
	importCmd.Flags().StringVar(&importQ, "q", "", "second prime (decimal)")
	importCmd.Flags().StringVar(&importE, "e", "", "public exponent (decimal)")
	importCmd.MarkFlagRequired("p")
	importCmd.MarkFlagRequired("q")
	importCmd.MarkFlagRequired("e")

	keysShowCmd.Flags().BoolVar(&showFull, "full", false, "print values without truncation")
	keysDeleteCmd.Flags().BoolVarP(&deleteYes, "yes", "y", false, "do not ask for confirmation")
	keysCmd.AddCommand(keysListCmd, keysShowCmd, keysDeleteCmd, keysStatsCmd)

	encryptCmd.Flags().Int64Var(&cryptKeyID, "key", 0, "id of the stored key")
	encryptCmd.Flags().StringVar(&cryptText, "text", "", "plaintext")
	encryptCmd.MarkFlagRequired("key")

	decryptCmd.Flags().Int64Var(&cryptKeyID, "key", 0, "id of the stored key")
	decryptCmd.Flags().StringVar(&cryptCipher, "cipher", "", `ciphertext as \xHH bytes`)
	decryptCmd.MarkFlagRequired("key")

	rootCmd.AddCommand(keygenCmd, importCmd, keysCmd, encryptCmd, decryptCmd)
}

func printRecord(w io.Writer, rec *store.Record, full bool) {
	show := func(s string) string {
		if full {
			return s
		}
		return truncate(s, 50)
	}
	fmt.Fprintln(w, "id:", rec.ID)
	fmt.Fprintln(w, "bit length:", rec.BitLength)
	fmt.Fprintln(w, "fingerprint:", rec.Fingerprint())
	fmt.Fprintln(w, "p =", show(rec.P))
	fmt.Fprintln(w, "q =", show(rec.Q))
	fmt.Fprintln(w, "e =", rec.E)
	fmt.Fprintln(w, "n =", show(rec.N))
	fmt.Fprintln(w, "d =", show(rec.D))
}

func confirm(in io.Reader, out io.Writer, prompt string) bool {
	fmt.Fprint(out, prompt)
	answer, _ := bufio.NewReader(in).ReadString('\n')
	return strings.TrimSpace(answer) == "yes"
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, errors.Errorf("invalid key id %q", s)
	}
	return id, nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
