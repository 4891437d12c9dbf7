package main

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/born-ml/gpurt/backend/cpu"
	"github.com/born-ml/gpurt/backend/webgpu"
	"github.com/born-ml/gpurt/gpu"
	"github.com/born-ml/gpurt/internal/envconfig"
	"github.com/born-ml/gpurt/internal/kernels"
	"github.com/born-ml/gpurt/tensor"
)

// appendEnvDocs adds the environment variables cmd reads to its usage.
func appendEnvDocs(cmd *cobra.Command, envs []envconfig.EnvVar) {
	if len(envs) == 0 {
		return
	}

	envUsage := `
Environment Variables:
`
	for _, e := range envs {
		envUsage += fmt.Sprintf("      %-24s   %s\n", e.Name, e.Description)
	}

	cmd.SetUsageTemplate(cmd.UsageTemplate() + envUsage)
}

// NewCLI returns the root command.
func NewCLI() *cobra.Command {
	cobra.EnableCommandSorting = false

	rootCmd := &cobra.Command{
		Use:           "gpurt",
		Short:         "Run WGSL compute kernels on the GPU or the software device",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		Run: func(cmd *cobra.Command, args []string) {
			if v, _ := cmd.Flags().GetBool("version"); v {
				versionHandler(cmd, args)
				return
			}

			cmd.Print(cmd.UsageString())
		},
	}

	rootCmd.Flags().BoolP("version", "v", false, "Show version information")

	geluCmd := &cobra.Command{
		Use:   "gelu",
		Short: "Compute GELU over a ramp of inputs",
		Args:  cobra.NoArgs,
		RunE:  GELUHandler,
	}
	geluCmd.Flags().Int("n", 10000, "Number of elements")
	geluCmd.Flags().Int("workgroup-size", kernels.DefaultWorkgroupSize, "Workgroup size")
	geluCmd.Flags().String("device", "", "Device to use (default $GPURT_DEVICE)")

	infoCmd := &cobra.Command{
		Use:   "info",
		Short: "Show devices and built-in kernels",
		Args:  cobra.NoArgs,
		RunE:  InfoHandler,
	}
	infoCmd.Flags().String("device", "", "Device to open (default $GPURT_DEVICE)")

	envCmd := &cobra.Command{
		Use:   "env",
		Short: "Show the GPURT_* environment configuration",
		Args:  cobra.NoArgs,
		RunE:  EnvHandler,
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run:   versionHandler,
	}

	envVars := envconfig.AsMap()
	for _, cmd := range []*cobra.Command{geluCmd, infoCmd} {
		appendEnvDocs(cmd, []envconfig.EnvVar{
			envVars["GPURT_DEVICE"],
			envVars["GPURT_DEBUG"],
			envVars["GPURT_DISPATCH_TIMEOUT"],
			envVars["GPURT_NUM_WORKERS"],
			envVars["GPURT_MAX_BATCH"],
			envVars["GPURT_CPU_MEMORY_LIMIT"],
		})
	}

	rootCmd.AddCommand(geluCmd, infoCmd, envCmd, versionCmd)
	return rootCmd
}

func versionHandler(cmd *cobra.Command, _ []string) {
	fmt.Fprintf(cmd.OutOrStdout(), "gpurt version %s\n", version)
}

func createContext(cmd *cobra.Command) (*gpu.Context, error) {
	var opts []gpu.Option
	if device, _ := cmd.Flags().GetString("device"); device != "" {
		opts = append(opts, gpu.WithDevice(device))
	}
	return gpu.CreateContext(opts...)
}

// GELUHandler runs the GELU kernel over inputs i/10 and prints the first
// results.
func GELUHandler(cmd *cobra.Command, _ []string) error {
	n, err := cmd.Flags().GetInt("n")
	if err != nil {
		return err
	}
	wg, err := cmd.Flags().GetInt("workgroup-size")
	if err != nil {
		return err
	}
	if n <= 0 {
		return fmt.Errorf("--n must be positive, got %d", n)
	}
	if wg <= 0 {
		return fmt.Errorf("--workgroup-size must be positive, got %d", wg)
	}

	ctx, err := createContext(cmd)
	if err != nil {
		return err
	}
	defer ctx.Release()

	shape := tensor.MustShape(n)
	input, err := ctx.CreateTensor(shape, tensor.F32)
	if err != nil {
		return err
	}
	output, err := ctx.CreateTensor(shape, tensor.F32)
	if err != nil {
		return err
	}

	in := make([]float32, n)
	for i := range in {
		in[i] = float32(i) / 10
	}
	if err := gpu.ToGPU(ctx, input, in); err != nil {
		return err
	}

	code, err := gpu.BuiltinKernel("gelu", wg, tensor.F32)
	if err != nil {
		return err
	}
	k, err := ctx.CreateKernel(code, []*gpu.Tensor{input, output}, tensor.Grid1D(n, wg), nil)
	if err != nil {
		return err
	}
	if err := ctx.Run(cmd.Context(), k); err != nil {
		return err
	}

	out := make([]float32, n)
	if err := gpu.ToCPU(ctx, output, out); err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	for i := range min(12, n) {
		fmt.Fprintf(w, "  gelu(%.2f) = %.2f\n", in[i], out[i])
	}
	fmt.Fprintln(w, "  ...")
	fmt.Fprintf(w, "Computed %d values of GELU(x) on %s\n", n, ctx.DeviceInfo())
	return nil
}

func newTable(w io.Writer, header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.SetAutoWrapText(false)
	return table
}

func deviceDescription(name string) (bool, string) {
	switch name {
	case cpu.Name:
		return cpu.IsAvailable(), fmt.Sprintf("software, %d workers", cpu.Workers())
	case webgpu.Name:
		adapters, err := webgpu.ListAdapters()
		if err != nil {
			return false, err.Error()
		}
		descs := make([]string, len(adapters))
		for i, a := range adapters {
			descs[i] = a.String()
		}
		return true, strings.Join(descs, "; ")
	default:
		return true, ""
	}
}

// InfoHandler prints the devices built into the binary, the device a
// Context opens, and the built-in kernels.
func InfoHandler(cmd *cobra.Command, _ []string) error {
	w := cmd.OutOrStdout()

	names := gpu.Devices()
	if !slices.Contains(names, webgpu.Name) {
		names = append(names, webgpu.Name)
	}
	var data [][]string
	for _, name := range names {
		available, desc := deviceDescription(name)
		data = append(data, []string{name, fmt.Sprint(available), desc})
	}
	table := newTable(w, []string{"DEVICE", "AVAILABLE", "DESCRIPTION"})
	table.AppendBulk(data)
	table.Render()

	ctx, err := createContext(cmd)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "\nSelected: %s (%s)\n\n", ctx.DeviceName(), ctx.DeviceInfo())
	ctx.Release()

	data = data[:0]
	for _, k := range gpu.BuiltinKernels() {
		data = append(data, []string{k.Name, fmt.Sprint(k.Bindings), fmt.Sprint(k.Params), k.Description})
	}
	table = newTable(w, []string{"KERNEL", "BINDINGS", "PARAMS", "DESCRIPTION"})
	table.AppendBulk(data)
	table.Render()
	return nil
}

// EnvHandler prints every GPURT_* variable with its effective value.
func EnvHandler(cmd *cobra.Command, _ []string) error {
	vars := envconfig.AsMap()
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	data := make([][]string, 0, len(keys))
	for _, k := range keys {
		v := vars[k]
		data = append(data, []string{v.Name, fmt.Sprint(v.Value), v.Description})
	}
	table := newTable(cmd.OutOrStdout(), []string{"NAME", "VALUE", "DESCRIPTION"})
	table.AppendBulk(data)
	table.Render()
	return nil
}
