package core_test

import (
	"testing"

	"github.com/danielchristiancazares/freespace2/core"
)

func TestCheckDeviceLimits(t *testing.T) {
	cases := []struct {
		name    string
		limits  core.DeviceLimits
		wantErr bool
	}{
		{
			name: "meets contract",
			limits: core.DeviceLimits{
				MaxDescriptorSetSampledImages: 1024,
				MaxPushConstantsSize:          128,
			},
		},
		{
			name: "comfortably above",
			limits: core.DeviceLimits{
				MaxDescriptorSetSampledImages: 500000,
				MaxPushConstantsSize:          256,
			},
		},
		{
			name: "too few sampled images",
			limits: core.DeviceLimits{
				MaxDescriptorSetSampledImages: 1023,
				MaxPushConstantsSize:          256,
			},
			wantErr: true,
		},
		{
			name: "push constants too small",
			limits: core.DeviceLimits{
				MaxDescriptorSetSampledImages: 2048,
				MaxPushConstantsSize:          64,
			},
			wantErr: true,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := core.CheckDeviceLimits(tc.limits)
			if tc.wantErr && err == nil {
				t.Error("expected an error")
			}
			if !tc.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func BenchmarkSliceUint32Small(b *testing.B) {
	data := make([]byte, 100)
	for idx := 0; idx < b.N; idx++ {
		core.SliceUint32(data)
	}
}

func BenchmarkSliceUint32Medium(b *testing.B) {
	data := make([]byte, 1000)
	for idx := 0; idx < b.N; idx++ {
		core.SliceUint32(data)
	}
}

func BenchmarkSliceUint32Big(b *testing.B) {
	data := make([]byte, 100000)
	for idx := 0; idx < b.N; idx++ {
		core.SliceUint32(data)
	}
}
