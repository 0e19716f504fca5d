package scenes

// dpMaps lists the single-map scenes in menu order.
var dpMaps = []struct {
	mapNum int
	id     string
	name   string
}{
	{2, "dp02_dragrock_top", "DP: Dragon Rock - Top"},
	{3, "dp03_krazoa_palace", "DP: Krazoa Palace"},
	{4, "dp04_volcano_fp", "DP: Volcano Force Point"},
	{5, "dp05_rolling_demo", "DP: Rolling Demo"},
	{6, "dp06_discovery_falls", "DP: Discovery Falls"},
	{7, "dp07_swaphol", "DP: SwapStone Hollow"},
	{8, "dp08_swaphol2", "DP: SwapStone Hollow 2"},
	{9, "dp09_golden_plains", "DP: Golden Plains"},
	{10, "dp0a_northern_wastes", "DP: Northern Wastes"},
	{11, "dp0b_warlock_mountain", "DP: Warlock Mountain"},
	{12, "dp0c_crfort", "DP: CloudRunner Fortress"},
	{13, "dp0d_walled_city", "DP: Walled City"},
	{14, "dp0e_swapstone_circle", "DP: SwapStone Circle"},
	{15, "dp0f_cr_treasure", "DP: CloudRunner - Treasure"},
	{16, "dp10_cr_dungeon", "DP: CloudRunner - Dungeon"},
	{17, "dp11_cr_traprooms", "DP: CloudRunner - TrapRooms"},
	{18, "dp12_mmpass", "DP: Moon Mountain Pass"},
	{19, "dp13_dim1", "DP: DarkIce Mines Level 1"},
	{20, "dp14_krazoa_shrine_tpl", "DP: Krazoa Shrine (Unused Template)"},
	{21, "dp15_dfp_bottom", "DP: Desert Force Point Bottom"},
	{22, "dp16_krazchamber", "DP: krazchamber (Alt Objects)"},
	{23, "dp17_newicemount1", "DP: NewIceMt1"},
	{24, "dp18_newicemount2", "DP: NewIceMt2"},
	{25, "dp19_newicemount3", "DP: NewIceMt3"},
	{26, "dp1a_animtest", "DP: Animtest"},
	{27, "dp1b_dim2", "DP: DarkIce Mines Level 2"},
	{28, "dp1c_boss_galdon_dim3", "DP: BOSS Galdon DIM3"},
	{29, "dp1d_capeclaw", "DP: CapeClaw"},
	{30, "dp1e_inside_galleon", "DP: InsideGalleon"},
	{31, "dp1f_dfshrine", "DP: DFShrine"},
	{32, "dp20_mmshrine", "DP: MMShrine"},
	{33, "dp21_ecshrine", "DP: ECShrine"},
	{34, "dp22_gpshrine", "DP: GPShrine"},
	{35, "dp23_diamond_bay", "DP: Diamond Bay"},
	{36, "dp24_earthwalker_temple", "DP: EarthWalker Temple (Unused)"},
	{37, "dp25_willow_grove", "DP: Willow Grove"},
	{38, "dp26_blackwater_canyon", "DP: BlackWater Canyon"},
	{39, "dp27_dbshrine", "DP: DBShrine"},
	{40, "dp28_nwshrine", "DP: NWShrine"},
	{41, "dp29_ccshrine", "DP: CCShrine"},
	{42, "dp2a_wgshrine", "DP: WGShrine"},
	{43, "dp2b_cr_race", "DP: CloudRunner - Race"},
	{44, "dp2c_boss_drakor", "DP: BOSS Drakor"},
	{45, "dp2d_wminsert", "DP: WMinsert (Unused?)"},
	{46, "dp2e_dim_caves", "DP: DarkIce Mines - Caves"},
	{47, "dp2f_dim_lava", "DP: DarkIce Mines - Lava"},
	{48, "dp30_boss_trex", "DP: BOSS TRex"},
	{49, "dp31_mikeslava", "DP: MikesLava (Test)"},
	{50, "dp32_dfp_top", "DP: Desert Force Point Top"},
	{51, "dp33_swap_store", "DP: Swap Store"},
	{52, "dp34_dragrock_bottom", "DP: Dragon Rock - Bottom"},
	{53, "dp35_boss_kamerian", "DP: BOSS Kamerian Dragon"},
	{54, "dp36_magic_cave_small", "DP: Magic Cave - Small"},
}
